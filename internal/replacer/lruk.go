// Package replacer implements the LRU-K frame eviction policy used by the
// buffer pool manager to pick a victim frame when the pool is full.
package replacer

import (
	"container/list"
	"fmt"
	"sync"
)

// FrameID indexes a buffer pool frame.
type FrameID int32

const logPrefix = "replacer: "

// LRUK chooses an evictable frame with the largest backward k-distance,
// breaking ties by earliest oldest access.
//
// Frames with fewer than k recorded accesses live in historyList (MRU at
// front); frames with k or more accesses live in cacheList (MRU at
// front). Grounded on the dual-list, map-paired design used by
// pjimming/HermesDB's LRUKReplacer.
type LRUK struct {
	mu sync.Mutex

	replacerSize FrameID
	k            int
	currSize     int

	historyList *list.List
	historyMap  map[FrameID]*list.Element

	cacheList *list.List
	cacheMap  map[FrameID]*list.Element

	accessCount map[FrameID]int
	isEvictable map[FrameID]bool
}

// New creates an LRU-K replacer tracking up to numFrames distinct frame
// ids, each evicted once its backward k-distance is the largest among
// evictable frames.
func New(numFrames int, k int) *LRUK {
	return &LRUK{
		replacerSize: FrameID(numFrames),
		k:            k,
		historyList:  list.New(),
		historyMap:   make(map[FrameID]*list.Element),
		cacheList:    list.New(),
		cacheMap:     make(map[FrameID]*list.Element),
		accessCount:  make(map[FrameID]int),
		isEvictable:  make(map[FrameID]bool),
	}
}

func (r *LRUK) checkRange(frame FrameID) {
	if frame < 0 || frame >= r.replacerSize {
		panic(fmt.Sprintf("%sframe %d out of range [0, %d)", logPrefix, frame, r.replacerSize))
	}
}

// RecordAccess records that frame was referenced. A frame unknown to the
// replacer starts with access count 1 at the MRU end of the history list.
func (r *LRUK) RecordAccess(frame FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkRange(frame)

	r.accessCount[frame]++

	switch {
	case r.accessCount[frame] == r.k:
		if e, ok := r.historyMap[frame]; ok {
			r.historyList.Remove(e)
			delete(r.historyMap, frame)
		}
		r.cacheMap[frame] = r.cacheList.PushFront(frame)
	case r.accessCount[frame] > r.k:
		if e, ok := r.cacheMap[frame]; ok {
			r.cacheList.Remove(e)
		}
		r.cacheMap[frame] = r.cacheList.PushFront(frame)
	default:
		if e, ok := r.historyMap[frame]; ok {
			r.historyList.Remove(e)
		}
		r.historyMap[frame] = r.historyList.PushFront(frame)
	}
}

// SetEvictable toggles whether frame may be chosen by Evict. Unknown
// frames are ignored.
func (r *LRUK) SetEvictable(frame FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkRange(frame)

	if _, known := r.accessCount[frame]; !known {
		return
	}

	was := r.isEvictable[frame]
	r.isEvictable[frame] = evictable
	switch {
	case evictable && !was:
		r.currSize++
	case !evictable && was:
		r.currSize--
	}
}

// Evict scans the history list from its LRU end first (frames with
// infinite backward k-distance), then the cache list from its LRU end,
// and removes+returns the first evictable frame it finds.
func (r *LRUK) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currSize == 0 {
		return 0, false
	}

	for e := r.historyList.Back(); e != nil; e = e.Prev() {
		frame := e.Value.(FrameID)
		if !r.isEvictable[frame] {
			continue
		}
		r.historyList.Remove(e)
		delete(r.historyMap, frame)
		r.clearLocked(frame)
		return frame, true
	}

	for e := r.cacheList.Back(); e != nil; e = e.Prev() {
		frame := e.Value.(FrameID)
		if !r.isEvictable[frame] {
			continue
		}
		r.cacheList.Remove(e)
		delete(r.cacheMap, frame)
		r.clearLocked(frame)
		return frame, true
	}

	return 0, false
}

// Remove forcibly deletes all state for frame. It is a precondition
// violation to call Remove on a known frame that is not evictable; an
// unknown frame is a silent no-op.
func (r *LRUK) Remove(frame FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.checkRange(frame)

	if _, known := r.accessCount[frame]; !known {
		return
	}
	if !r.isEvictable[frame] {
		panic(fmt.Sprintf("%sRemove called on non-evictable frame %d", logPrefix, frame))
	}

	if r.accessCount[frame] >= r.k {
		if e, ok := r.cacheMap[frame]; ok {
			r.cacheList.Remove(e)
			delete(r.cacheMap, frame)
		}
	} else {
		if e, ok := r.historyMap[frame]; ok {
			r.historyList.Remove(e)
			delete(r.historyMap, frame)
		}
	}
	r.clearLocked(frame)
}

// Size returns the number of frames currently marked evictable.
func (r *LRUK) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currSize
}

func (r *LRUK) clearLocked(frame FrameID) {
	delete(r.accessCount, frame)
	delete(r.isEvictable, frame)
	r.currSize--
}
