package badgerdb

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Key layout. The separator never appears in validated targets or ids,
// so prefixes stay unambiguous:
//
//	scan|<id>                       report JSON
//	target|<target>|<stamp>|<id>    index, value is the scan id
//	time|<stamp>|<id>               index, value is the scan id
//	scanerr|<scanID>|<seq>          scan error JSON
//	analysis|<scanID>|<stamp>|<id>  analysis JSON
//
// <stamp> is an inverted zero-padded UnixNano so that lexical ascending
// iteration yields newest first.

func scanKey(id string) []byte {
	return []byte("scan|" + id)
}

func targetKey(target string, started time.Time, id string) []byte {
	return []byte("target|" + target + "|" + invertedStamp(started) + "|" + id)
}

func targetPrefix(target string) []byte {
	return []byte("target|" + target + "|")
}

func timeKey(started time.Time, id string) []byte {
	return []byte("time|" + invertedStamp(started) + "|" + id)
}

func scanErrKey(scanID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("scanerr|%s|%020d", scanID, seq))
}

func scanErrPrefix(scanID string) []byte {
	return []byte("scanerr|" + scanID + "|")
}

func analysisKey(scanID string, created time.Time, id string) []byte {
	return []byte("analysis|" + scanID + "|" + invertedStamp(created) + "|" + id)
}

func analysisPrefix(scanID string) []byte {
	return []byte("analysis|" + scanID + "|")
}

func invertedStamp(t time.Time) string {
	return fmt.Sprintf("%020d", uint64(math.MaxInt64-t.UnixNano()))
}

// stampTime recovers the timestamp from one inverted stamp segment.
func stampTime(seg string) (time.Time, bool) {
	n, err := strconv.ParseUint(seg, 10, 64)
	if err != nil || n > math.MaxInt64 {
		return time.Time{}, false
	}
	return time.Unix(0, math.MaxInt64-int64(n)).UTC(), true
}
