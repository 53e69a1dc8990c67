package column

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/akrennmair/eventdex/bitmap"
	"github.com/akrennmair/eventdex/internal/openfile"
	"github.com/akrennmair/eventdex/value"
	"go.etcd.io/bbolt"
)

// TempSuffix is appended to the name of an index file while it is being
// written. Files with this suffix are leftovers of an interrupted store.
const TempSuffix = ".tmp"

var (
	bucketData     = []byte("data")
	keyType        = []byte{'T'}
	keySize        = []byte{'S'}
	keyMask        = []byte{'M'}
	keyPrefixValue = []byte{'V'}
)

// valuesPerTx bounds the number of value bitmaps written per transaction.
const valuesPerTx = 1000

// WriteFile persists idx to filename. The data is first written to a
// temporary file which then replaces filename, so a crash never leaves a
// half-written index behind.
func WriteFile(filename string, idx Index) error {
	tmp := filename + TempSuffix

	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale %s: %w", tmp, err)
	}

	db, err := bbolt.Open(tmp, 0644, &bbolt.Options{OpenFile: openfile.Exclusive()})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	if err := WriteToBoltDatabase(db, idx); err != nil {
		db.Close()
		os.Remove(tmp)
		return err
	}

	if err := db.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, filename); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filename, err)
	}

	return nil
}

// WriteToBoltDatabase writes idx into the data bucket of db.
func WriteToBoltDatabase(db *bbolt.DB, idx Index) error {
	p, ok := idx.(persistable)
	if !ok {
		return fmt.Errorf("%w: index of type %T cannot be persisted", ErrUnsupportedValueType, idx)
	}

	tx, err := db.Begin(true)
	if err != nil {
		return fmt.Errorf("failed to start new transaction: %w", err)
	}
	defer func() {
		// no-op after a successful commit.
		_ = tx.Rollback()
	}()

	// drop whatever a previous write left behind.
	if tx.Bucket(bucketData) != nil {
		if err := tx.DeleteBucket(bucketData); err != nil {
			return err
		}
	}

	bucket, err := tx.CreateBucket(bucketData)
	if err != nil {
		return err
	}

	if err := bucket.Put(keyType, []byte{byte(idx.Type())}); err != nil {
		return err
	}

	if err := bucket.Put(keySize, encodeUint64(idx.Size())); err != nil {
		return err
	}

	maskBuf, err := idx.Mask().ToRoaring().ToBytes()
	if err != nil {
		return err
	}

	if err := bucket.Put(keyMask, maskBuf); err != nil {
		return err
	}

	i := 0

	err = p.forEachEncoded(func(key []byte, bm *bitmap.Bitmap) error {
		valueBuf, err := bm.ToRoaring().ToBytes()
		if err != nil {
			return err
		}

		if err := bucket.Put(append(append([]byte{}, keyPrefixValue...), key...), valueBuf); err != nil {
			return err
		}

		i++

		if i%valuesPerTx == 0 {
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit transaction: %w", err)
			}

			tx, err = db.Begin(true)
			if err != nil {
				return fmt.Errorf("failed to start new transaction: %w", err)
			}

			bucket = tx.Bucket(bucketData)
		}

		return nil
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ReadFile loads an index previously written with WriteFile. The file
// must exist.
func ReadFile(filename string) (Index, error) {
	db, err := bbolt.Open(filename, 0644, &bbolt.Options{
		ReadOnly: true,
		Timeout:  time.Second,
		OpenFile: openfile.Existing(),
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("failed to open %s: %w", filename, err)
		}
		// anything else means the file is not a usable bbolt database.
		return nil, fmt.Errorf("%w: %s: %v", ErrFormat, filename, err)
	}
	defer db.Close()

	idx, err := ReadFromBoltDatabase(db)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	return idx, nil
}

// ReadFromBoltDatabase loads an index from the data bucket of db.
func ReadFromBoltDatabase(db *bbolt.DB) (Index, error) {
	var idx Index

	err := db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketData)
		if bucket == nil {
			return fmt.Errorf("%w: missing data bucket", ErrFormat)
		}

		typeItem := bucket.Get(keyType)
		if len(typeItem) != 1 {
			return fmt.Errorf("%w: missing type", ErrFormat)
		}

		newIdx, err := New(value.Type(typeItem[0]))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFormat, err)
		}

		size, err := decodeUint64(bucket.Get(keySize))
		if err != nil {
			return fmt.Errorf("%w: invalid size: %v", ErrFormat, err)
		}

		mask, err := decodeBitmap(bucket.Get(keyMask), size)
		if err != nil {
			return fmt.Errorf("%w: invalid mask: %v", ErrFormat, err)
		}

		values := map[string]*bitmap.Bitmap{}

		c := bucket.Cursor()
		for k, v := c.Seek(keyPrefixValue); k != nil && bytes.HasPrefix(k, keyPrefixValue); k, v = c.Next() {
			bm, err := decodeBitmap(v, size)
			if err != nil {
				return fmt.Errorf("%w: invalid value bitmap: %v", ErrFormat, err)
			}
			values[string(k[len(keyPrefixValue):])] = bm
		}

		if err := newIdx.(persistable).restore(size, mask, values); err != nil {
			return err
		}

		idx = newIdx

		return nil
	})
	if err != nil {
		return nil, err
	}

	return idx, nil
}

func decodeBitmap(data []byte, size uint64) (*bitmap.Bitmap, error) {
	if data == nil {
		return nil, errors.New("no data")
	}

	rb := roaring64.New()
	if err := rb.UnmarshalBinary(data); err != nil {
		return nil, err
	}

	return bitmap.FromRoaring(rb, size)
}
