// Package command binds parsed protocol commands to store operations and
// formats their textual replies. Replies never carry a trailing "\r\n";
// the connection layer appends it once the full reply line (or, for
// multi-line replies, the full reply block) has been assembled.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/linecache/linecached/protocol"
	"github.com/linecache/linecached/store"
)

const (
	replyStored    = "STORED"
	replyNotStored = "NOT_STORED"
	replyNotFound  = "NOT_FOUND"
	replyDeleted   = "DELETED"
	replyEnd       = "END"

	// replyTooLarge is the reply used, consistently, for every capacity
	// rejection: a single key+value (or a combined append/prepend result)
	// that cannot fit within the store's configured max_size. NOT_STORED
	// is reserved for conditional failures (add on an existing key,
	// replace/append/prepend on a missing one).
	replyTooLarge = "SERVER_ERROR object too large for cache"
)

// Execute runs cmd against s and returns the reply text, without a
// trailing "\r\n". bulk is the bulk argument gathered by the connection
// layer for storage commands; it is ignored for all other kinds.
func Execute(s *store.Store, cmd protocol.Command, bulk []byte) string {
	switch cmd.Kind {
	case protocol.KindSet:
		return executeStore(s, cmd, bulk, storeModePut)
	case protocol.KindAdd:
		return executeStore(s, cmd, bulk, storeModeAddOnly)
	case protocol.KindReplace:
		return executeStore(s, cmd, bulk, storeModeReplaceOnly)
	case protocol.KindAppend:
		return executeAppendPrepend(s, cmd, bulk, false)
	case protocol.KindPrepend:
		return executeAppendPrepend(s, cmd, bulk, true)
	case protocol.KindGet:
		return executeGet(s, cmd.Keys, false)
	case protocol.KindGets:
		return executeGet(s, cmd.Keys, true)
	case protocol.KindDelete:
		return executeDelete(s, cmd.Key)
	case protocol.KindStats:
		return executeStats(s)
	default:
		return "ERROR"
	}
}

type storeMode int

const (
	storeModePut storeMode = iota
	storeModeAddOnly
	storeModeReplaceOnly
)

func executeStore(s *store.Store, cmd protocol.Command, value []byte, mode storeMode) string {
	if !s.Fits(cmd.Key, value) {
		return replyTooLarge
	}

	var ok bool
	switch mode {
	case storeModeAddOnly:
		ok = s.PutIfAbsent(cmd.Key, value)
	case storeModeReplaceOnly:
		ok = s.Set(cmd.Key, value)
	default:
		ok = s.Put(cmd.Key, value)
	}

	if !ok {
		return replyNotStored
	}
	return replyStored
}

func executeAppendPrepend(s *store.Store, cmd protocol.Command, suffix []byte, prepend bool) string {
	old, found := s.Get(cmd.Key)
	if !found {
		return replyNotStored
	}

	var combined []byte
	if prepend {
		combined = make([]byte, 0, len(suffix)+len(old))
		combined = append(combined, suffix...)
		combined = append(combined, old...)
	} else {
		combined = make([]byte, 0, len(old)+len(suffix))
		combined = append(combined, old...)
		combined = append(combined, suffix...)
	}

	if !s.Fits(cmd.Key, combined) {
		return replyTooLarge
	}
	if !s.Set(cmd.Key, combined) {
		// The key was deleted or evicted between the Get above and this
		// Set; from the client's perspective that's indistinguishable
		// from "nothing to append to".
		return replyNotStored
	}
	return replyStored
}

func executeGet(s *store.Store, keys []string, withCasToken bool) string {
	var b strings.Builder
	for _, key := range keys {
		value, ok := s.Get(key)
		if !ok {
			continue
		}
		if withCasToken {
			// No real CAS support: entries don't carry a unique token, so
			// gets always reports 0. Clients that don't rely on CAS
			// (the common case for append/prepend-style usage) still get
			// a syntactically valid response line.
			fmt.Fprintf(&b, "VALUE %s 0 %d 0\r\n", key, len(value))
		} else {
			fmt.Fprintf(&b, "VALUE %s 0 %d\r\n", key, len(value))
		}
		b.Write(value)
		b.WriteString("\r\n")
	}
	b.WriteString(replyEnd)
	return b.String()
}

func executeDelete(s *store.Store, key string) string {
	if s.Delete(key) {
		return replyDeleted
	}
	return replyNotFound
}

func executeStats(s *store.Store) string {
	snap := s.Snapshot()

	var b strings.Builder
	stat := func(name string, value int64) {
		fmt.Fprintf(&b, "STAT %s %s\r\n", name, strconv.FormatInt(value, 10))
	}
	stat("cmd_get", snap.Hits+snap.Misses)
	stat("cmd_set", snap.Sets)
	stat("get_hits", snap.Hits)
	stat("get_misses", snap.Misses)
	stat("evictions", snap.Evictions)
	stat("curr_items", snap.Items)
	stat("bytes", snap.UsedBytes)
	stat("limit_maxbytes", snap.MaxBytes)
	b.WriteString(replyEnd)
	return b.String()
}
