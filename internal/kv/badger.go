// GeoCanvas - Collaborative Infinite and Geo-Anchored Drawing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/geocanvas

package kv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path"
	"sort"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Internal key layout. Each logical key maps to one or more badger keys:
//
//	s<key>                string value
//	h<key>\x00<field>     hash field
//	S<key>\x00<member>    set member
//	z<key>\x00<member>    sorted-set member, value = float64 score bits
//	e<key>                expiry deadline (unix seconds) shared by all entries of <key>
const (
	tagString = 's'
	tagHash   = 'h'
	tagSet    = 'S'
	tagZSet   = 'z'
	tagExpiry = 'e'
	sep       = 0x00
)

var containerTags = []byte{tagHash, tagSet, tagZSet}

const maxTxnRetries = 8

// BadgerBackend stores data in an embedded badger database.
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger database. An empty dir with
// inMemory=true gives a throwaway store for tests.
func OpenBadger(dir string, inMemory bool) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &BadgerBackend{db: db}, nil
}

// NewBadger wraps an already open database.
func NewBadger(db *badger.DB) *BadgerBackend {
	return &BadgerBackend{db: db}
}

// Name implements Backend.
func (b *BadgerBackend) Name() string { return "badger" }

// Ping implements Backend.
func (b *BadgerBackend) Ping(context.Context) error {
	if b.db.IsClosed() {
		return fmt.Errorf("%w: badger closed", ErrBackendUnavailable)
	}
	return nil
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

// RunGC runs one value-log GC pass. Returns nil when nothing was rewritten.
func (b *BadgerBackend) RunGC() error {
	err := b.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
		return nil
	}
	return err
}

func entryKey(tag byte, key string) []byte {
	k := make([]byte, 0, len(key)+1)
	k = append(k, tag)
	return append(k, key...)
}

func memberKey(tag byte, key, member string) []byte {
	k := make([]byte, 0, len(key)+len(member)+2)
	k = append(k, tag)
	k = append(k, key...)
	k = append(k, sep)
	return append(k, member...)
}

func memberPrefix(tag byte, key string) []byte {
	k := make([]byte, 0, len(key)+2)
	k = append(k, tag)
	k = append(k, key...)
	return append(k, sep)
}

func (b *BadgerBackend) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (b *BadgerBackend) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(fn)
}

// deadline returns the key's expiry in unix seconds, 0 if none.
func deadline(txn *badger.Txn, key string) (uint64, error) {
	item, err := txn.Get(entryKey(tagExpiry, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var at uint64
	err = item.Value(func(v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("kv: corrupt expiry for %q", key)
		}
		at = binary.BigEndian.Uint64(v)
		return nil
	})
	return at, err
}

// setEntry writes k=v inheriting the logical key's expiry.
func setEntry(txn *badger.Txn, key string, k, v []byte) error {
	at, err := deadline(txn, key)
	if err != nil {
		return err
	}
	e := badger.NewEntry(k, v)
	if at > 0 {
		e.ExpiresAt = at
	}
	return txn.SetEntry(e)
}

func prefixKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func (b *BadgerBackend) dropLocked(txn *badger.Txn, key string) error {
	for _, tag := range containerTags {
		for _, k := range prefixKeys(txn, memberPrefix(tag, key)) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
	}
	if err := txn.Delete(entryKey(tagString, key)); err != nil {
		return err
	}
	return txn.Delete(entryKey(tagExpiry, key))
}

func existsIn(txn *badger.Txn, key string) (bool, error) {
	if _, err := txn.Get(entryKey(tagString, key)); err == nil {
		return true, nil
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return false, err
	}
	for _, tag := range containerTags {
		if len(prefixKeysLimit(txn, memberPrefix(tag, key), 1)) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func prefixKeysLimit(txn *badger.Txn, prefix []byte, limit int) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid() && len(keys) < limit; it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// Get implements Backend.
func (b *BadgerBackend) Get(ctx context.Context, key string) (string, error) {
	var out string
	err := b.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(tagString, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			out = string(v)
			return nil
		})
	})
	return out, err
}

// Set implements Backend.
func (b *BadgerBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		if err := b.dropLocked(txn, key); err != nil {
			return err
		}
		return b.writeString(txn, key, value, ttl)
	})
}

func (b *BadgerBackend) writeString(txn *badger.Txn, key, value string, ttl time.Duration) error {
	e := badger.NewEntry(entryKey(tagString, key), []byte(value))
	if ttl > 0 {
		e = e.WithTTL(ttl)
		if err := txn.SetEntry(badger.NewEntry(entryKey(tagExpiry, key), encodeDeadline(e.ExpiresAt)).WithTTL(ttl)); err != nil {
			return err
		}
	}
	return txn.SetEntry(e)
}

// SetNX implements Backend.
func (b *BadgerBackend) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var set bool
	err := b.update(ctx, func(txn *badger.Txn) error {
		set = false
		ok, err := existsIn(txn, key)
		if err != nil || ok {
			return err
		}
		set = true
		return b.writeString(txn, key, value, ttl)
	})
	return set, err
}

// Del implements Backend.
func (b *BadgerBackend) Del(ctx context.Context, keys ...string) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := b.dropLocked(txn, k); err != nil {
				return err
			}
		}
		return nil
	})
}

// HSet implements Backend.
func (b *BadgerBackend) HSet(ctx context.Context, key, field, value string) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		return setEntry(txn, key, memberKey(tagHash, key, field), []byte(value))
	})
}

// HGet implements Backend.
func (b *BadgerBackend) HGet(ctx context.Context, key, field string) (string, error) {
	var out string
	err := b.view(ctx, func(txn *badger.Txn) error {
		v, err := getValue(txn, memberKey(tagHash, key, field))
		out = string(v)
		return err
	})
	return out, err
}

func getValue(txn *badger.Txn, k []byte) ([]byte, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// HMGet implements Backend.
func (b *BadgerBackend) HMGet(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	err := b.view(ctx, func(txn *badger.Txn) error {
		for _, f := range fields {
			v, err := getValue(txn, memberKey(tagHash, key, f))
			if errors.Is(err, ErrNil) {
				continue
			}
			if err != nil {
				return err
			}
			out[f] = string(v)
		}
		return nil
	})
	return out, err
}

// HDel implements Backend.
func (b *BadgerBackend) HDel(ctx context.Context, key string, fields ...string) error {
	return b.deleteMembers(ctx, tagHash, key, fields)
}

func (b *BadgerBackend) deleteMembers(ctx context.Context, tag byte, key string, members []string) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		for _, m := range members {
			if err := txn.Delete(memberKey(tag, key, m)); err != nil {
				return err
			}
		}
		return nil
	})
}

// HIncrBy implements Backend.
func (b *BadgerBackend) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	var out int64
	err := b.update(ctx, func(txn *badger.Txn) error {
		k := memberKey(tagHash, key, field)
		var cur int64
		v, err := getValue(txn, k)
		switch {
		case errors.Is(err, ErrNil):
		case err != nil:
			return err
		default:
			cur, err = strconv.ParseInt(string(v), 10, 64)
			if err != nil {
				return fmt.Errorf("kv: hash value is not an integer: %w", err)
			}
		}
		out = cur + delta
		return setEntry(txn, key, k, []byte(strconv.FormatInt(out, 10)))
	})
	return out, err
}

// HGetAll implements Backend.
func (b *BadgerBackend) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	out := make(map[string]string)
	prefix := memberPrefix(tagHash, key)
	err := b.view(ctx, func(txn *badger.Txn) error {
		return iterate(txn, prefix, true, func(sub []byte, v []byte) error {
			out[string(sub)] = string(v)
			return nil
		})
	})
	return out, err
}

// iterate calls fn with the suffix after prefix and, if withValues, the value.
func iterate(txn *badger.Txn, prefix []byte, withValues bool, fn func(sub, v []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = withValues
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		sub := bytes.TrimPrefix(item.KeyCopy(nil), prefix)
		var v []byte
		if withValues {
			var err error
			if v, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		if err := fn(sub, v); err != nil {
			return err
		}
	}
	return nil
}

// SAdd implements Backend.
func (b *BadgerBackend) SAdd(ctx context.Context, key string, members ...string) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		for _, m := range members {
			if err := setEntry(txn, key, memberKey(tagSet, key, m), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// SRem implements Backend.
func (b *BadgerBackend) SRem(ctx context.Context, key string, members ...string) error {
	return b.deleteMembers(ctx, tagSet, key, members)
}

// SMembers implements Backend. Members come back in byte order.
func (b *BadgerBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := b.view(ctx, func(txn *badger.Txn) error {
		return iterate(txn, memberPrefix(tagSet, key), false, func(sub, _ []byte) error {
			out = append(out, string(sub))
			return nil
		})
	})
	if out == nil {
		out = []string{}
	}
	return out, err
}

// SCard implements Backend.
func (b *BadgerBackend) SCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := b.view(ctx, func(txn *badger.Txn) error {
		return iterate(txn, memberPrefix(tagSet, key), false, func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// ZAdd implements Backend.
func (b *BadgerBackend) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], math.Float64bits(score))
		return setEntry(txn, key, memberKey(tagZSet, key, member), v[:])
	})
}

// ZRem implements Backend.
func (b *BadgerBackend) ZRem(ctx context.Context, key string, members ...string) error {
	return b.deleteMembers(ctx, tagZSet, key, members)
}

// ZCard implements Backend.
func (b *BadgerBackend) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := b.view(ctx, func(txn *badger.Txn) error {
		return iterate(txn, memberPrefix(tagZSet, key), false, func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// ZRange implements Backend.
func (b *BadgerBackend) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	scores := make(map[string]float64)
	err := b.view(ctx, func(txn *badger.Txn) error {
		return iterate(txn, memberPrefix(tagZSet, key), true, func(sub, v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("kv: corrupt score in %q", key)
			}
			scores[string(sub)] = math.Float64frombits(binary.BigEndian.Uint64(v))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sortedMembers(scores, start, stop), nil
}

// Expire implements Backend. Every entry of the key is rewritten with the
// new deadline so members added later inherit it through the expiry record.
func (b *BadgerBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		ok, err := existsIn(txn, key)
		if err != nil || !ok {
			return err
		}
		if ttl <= 0 {
			return b.dropLocked(txn, key)
		}

		at := uint64(time.Now().Add(ttl).Unix())
		if err := txn.SetEntry(badger.NewEntry(entryKey(tagExpiry, key), encodeDeadline(at)).WithTTL(ttl)); err != nil {
			return err
		}

		rewrite := func(k []byte) error {
			v, err := getValue(txn, k)
			if err != nil {
				if errors.Is(err, ErrNil) {
					return nil
				}
				return err
			}
			e := badger.NewEntry(k, v)
			e.ExpiresAt = at
			return txn.SetEntry(e)
		}
		if err := rewrite(entryKey(tagString, key)); err != nil {
			return err
		}
		for _, tag := range containerTags {
			for _, k := range prefixKeys(txn, memberPrefix(tag, key)) {
				if err := rewrite(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func encodeDeadline(at uint64) []byte {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], at)
	return v[:]
}

// Scan implements Backend.
func (b *BadgerBackend) Scan(ctx context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("kv: bad scan pattern %q: %w", pattern, err)
	}

	seen := make(map[string]struct{})
	err := b.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			raw := it.Item().Key()
			if len(raw) < 2 {
				continue
			}
			var logical []byte
			switch raw[0] {
			case tagString:
				logical = raw[1:]
			case tagHash, tagSet, tagZSet:
				i := bytes.IndexByte(raw[1:], sep)
				if i < 0 {
					continue
				}
				logical = raw[1 : 1+i]
			default:
				continue
			}
			k := string(logical)
			if _, dup := seen[k]; dup {
				continue
			}
			if ok, _ := path.Match(pattern, k); ok {
				seen[k] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
