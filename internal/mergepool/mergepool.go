// Package mergepool pools the scratch map and slice Bridge.Search
// allocates on every call to merge results from up to three backends,
// so a process issuing many searches per second doesn't churn the
// allocator on every one.
package mergepool

import (
	"sync"

	"github.com/lasmarois/notesbridge/internal/searchmodel"
)

var resultMapPool = sync.Pool{
	New: func() any {
		return make(map[string]*searchmodel.Result, 32)
	},
}

var orderSlicePool = sync.Pool{
	New: func() any {
		return make([]string, 0, 32)
	},
}

// GetResultMap returns an empty map[string]*searchmodel.Result from the pool.
func GetResultMap() map[string]*searchmodel.Result {
	return resultMapPool.Get().(map[string]*searchmodel.Result)
}

// PutResultMap clears and returns m to the pool.
func PutResultMap(m map[string]*searchmodel.Result) {
	clear(m)
	resultMapPool.Put(m)
}

// GetOrderSlice returns an empty []string from the pool.
func GetOrderSlice() []string {
	return orderSlicePool.Get().([]string)[:0]
}

// PutOrderSlice returns s to the pool.
func PutOrderSlice(s []string) {
	orderSlicePool.Put(s)
}
