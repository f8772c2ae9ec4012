package database

import (
	"errors"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mavleo96/ledger-partition/internal/ter"
	"github.com/mavleo96/ledger-partition/internal/txn"
	"go.etcd.io/bbolt"
)

var (
	balancesBucket  = []byte("balances")
	sequencesBucket = []byte("sequences")
	appliedBucket   = []byte("applied")

	ErrBucketNotFound = errors.New("bucket not found")
)

// Account is the ledger state of a single account
type Account struct {
	Balance  uint64
	Sequence uint32 // next sequence number the account may use
}

type Database struct {
	db *bbolt.DB
}

// InitDB opens the database at dbPath, creates the buckets and funds the
// genesis accounts that do not exist yet.
func (d *Database) InitDB(dbPath string, genesis map[common.Address]uint64) (err error) {
	boltDB, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return err
	}
	d.db = boltDB

	err = d.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{balancesBucket, sequencesBucket, appliedBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		balances := tx.Bucket(balancesBucket)
		sequences := tx.Bucket(sequencesBucket)
		for account, balance := range genesis {
			key := []byte(account.Hex())
			if balances.Get(key) != nil {
				continue
			}
			if err := putAccount(balances, sequences, key, Account{Balance: balance, Sequence: 1}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		d.db.Close()
	}
	return err
}

// ResetDB drops all state and funds the genesis accounts again
func (d *Database) ResetDB(genesis map[common.Address]uint64) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{balancesBucket, sequencesBucket, appliedBucket} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		balances := tx.Bucket(balancesBucket)
		sequences := tx.Bucket(sequencesBucket)
		for account, balance := range genesis {
			if err := putAccount(balances, sequences, []byte(account.Hex()), Account{Balance: balance, Sequence: 1}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplyPayment applies a payment to the ledger and returns its engine result.
// Only tes and tec results change state; both consume the sequence number.
func (d *Database) ApplyPayment(id common.Hash, t txn.Transaction) (ter.Code, error) {
	result := ter.TemUncertain
	err := d.db.Update(func(tx *bbolt.Tx) error {
		balances := tx.Bucket(balancesBucket)
		sequences := tx.Bucket(sequencesBucket)
		applied := tx.Bucket(appliedBucket)
		if balances == nil || sequences == nil || applied == nil {
			return ErrBucketNotFound
		}

		if applied.Get(id[:]) != nil {
			result = ter.TefAlready
			return nil
		}

		srcKey := []byte(t.Account.Hex())
		src, exists, err := getAccount(balances, sequences, srcKey)
		if err != nil {
			return err
		}
		if !exists {
			result = ter.TerNoAccount
			return nil
		}

		// Check sequence number
		if t.Sequence < src.Sequence {
			result = ter.TefPastSeq
			return nil
		}
		if t.Sequence > src.Sequence {
			result = ter.TerPreSeq
			return nil
		}

		// Check fee and funds
		if src.Balance < t.Fee {
			result = ter.TerInsufFeeB
			return nil
		}
		src.Sequence++
		src.Balance -= t.Fee
		if src.Balance < t.Amount {
			result = ter.TecUnfundedPayment
			if err := putAccount(balances, sequences, srcKey, src); err != nil {
				return err
			}
			return applied.Put(id[:], []byte(strconv.Itoa(int(result))))
		}

		// Move funds, creating the destination if needed
		src.Balance -= t.Amount
		if err := putAccount(balances, sequences, srcKey, src); err != nil {
			return err
		}
		dstKey := []byte(t.Destination.Hex())
		dst, exists, err := getAccount(balances, sequences, dstKey)
		if err != nil {
			return err
		}
		if !exists {
			dst = Account{Sequence: 1}
		}
		dst.Balance += t.Amount
		if err := putAccount(balances, sequences, dstKey, dst); err != nil {
			return err
		}
		result = ter.TesSuccess
		return applied.Put(id[:], []byte(strconv.Itoa(int(result))))
	})
	return result, err
}

// GetAccount returns the state of an account and whether it exists
func (d *Database) GetAccount(account common.Address) (Account, bool, error) {
	var acc Account
	var exists bool
	err := d.db.View(func(tx *bbolt.Tx) error {
		balances := tx.Bucket(balancesBucket)
		sequences := tx.Bucket(sequencesBucket)
		if balances == nil || sequences == nil {
			return ErrBucketNotFound
		}
		var err error
		acc, exists, err = getAccount(balances, sequences, []byte(account.Hex()))
		return err
	})
	return acc, exists, err
}

// IsApplied reports whether the transaction id is recorded in the ledger
func (d *Database) IsApplied(id common.Hash) (bool, error) {
	var applied bool
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(appliedBucket)
		if b == nil {
			return ErrBucketNotFound
		}
		applied = b.Get(id[:]) != nil
		return nil
	})
	return applied, err
}

// GetDBState gets the current state of all accounts
func (d *Database) GetDBState() (map[string]Account, error) {
	dbState := make(map[string]Account)

	err := d.db.View(func(tx *bbolt.Tx) error {
		balances := tx.Bucket(balancesBucket)
		sequences := tx.Bucket(sequencesBucket)
		if balances == nil || sequences == nil {
			return ErrBucketNotFound
		}
		return balances.ForEach(func(k, _ []byte) error {
			acc, _, err := getAccount(balances, sequences, k)
			if err != nil {
				return err
			}
			dbState[string(k)] = acc
			return nil
		})
	})
	return dbState, err
}

// Close closes the database
func (d *Database) Close() error {
	return d.db.Close()
}

func getAccount(balances, sequences *bbolt.Bucket, key []byte) (Account, bool, error) {
	balBytes := balances.Get(key)
	if balBytes == nil {
		return Account{}, false, nil
	}
	balance, err := strconv.ParseUint(string(balBytes), 10, 64)
	if err != nil {
		return Account{}, false, err
	}
	seq := uint64(1)
	if seqBytes := sequences.Get(key); seqBytes != nil {
		seq, err = strconv.ParseUint(string(seqBytes), 10, 32)
		if err != nil {
			return Account{}, false, err
		}
	}
	return Account{Balance: balance, Sequence: uint32(seq)}, true, nil
}

func putAccount(balances, sequences *bbolt.Bucket, key []byte, acc Account) error {
	if err := balances.Put(key, []byte(strconv.FormatUint(acc.Balance, 10))); err != nil {
		return err
	}
	return sequences.Put(key, []byte(strconv.FormatUint(uint64(acc.Sequence), 10)))
}
