package staking

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"stakeledger/storage"
)

var (
	configKey     = []byte("config")
	versionKey    = []byte("version")
	stakerPrefix  = []byte("staker/")
	rosterPrefix  = []byte("roster/")
	rosterPresent = []byte{1}
)

func stakerKey(addr string) []byte {
	buf := make([]byte, len(stakerPrefix)+len(addr))
	copy(buf, stakerPrefix)
	copy(buf[len(stakerPrefix):], addr)
	return buf
}

func rosterKey(addr string) []byte {
	buf := make([]byte, len(rosterPrefix)+len(addr))
	copy(buf, rosterPrefix)
	copy(buf[len(rosterPrefix):], addr)
	return buf
}

// exclusiveStart returns the smallest key sorting strictly after key.
func exclusiveStart(key []byte) []byte {
	return append(append([]byte(nil), key...), 0)
}

// KV is the raw key-value surface the ledger store needs. Both storage.Tx and
// storage.Database satisfy it.
type KV interface {
	storage.Reader
	storage.Writer
}

// State is the persistence surface used by the engine and the reward policies.
type State interface {
	Config() (*Config, error)
	PutConfig(cfg *Config) error
	Staker(addr string) (*Staker, bool, error)
	PutStaker(s *Staker) error
	DeleteStaker(addr string) error
	// RangeStakers visits staker records in address order, starting strictly
	// after startAfter. A limit of zero visits every remaining record.
	RangeStakers(startAfter string, limit int, fn func(*Staker) error) error
	RosterAdd(addr string) error
	RosterRemove(addr string) error
	RosterMembers() ([]string, error)
	Version() (*ContractVersion, bool, error)
	PutVersion(v *ContractVersion) error
}

// Store implements State with RLP-encoded records on top of an ordered KV.
type Store struct {
	kv KV
}

// NewStore wraps the provided key-value view.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	data, err := s.kv.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Put(key, encoded)
}

// Config loads the pool config.
func (s *Store) Config() (*Config, error) {
	cfg := new(Config)
	ok, err := s.get(configKey, cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInstantiated
	}
	cfg.normalize()
	return cfg, nil
}

// PutConfig persists the pool config.
func (s *Store) PutConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("staking: nil config")
	}
	cfg.normalize()
	return s.put(configKey, cfg)
}

// Staker loads a staker record.
func (s *Store) Staker(addr string) (*Staker, bool, error) {
	staker := new(Staker)
	ok, err := s.get(stakerKey(addr), staker)
	if err != nil || !ok {
		return nil, false, err
	}
	staker.normalize()
	return staker, true, nil
}

// PutStaker persists a staker record.
func (s *Store) PutStaker(staker *Staker) error {
	if staker == nil || staker.Address == "" {
		return errors.New("staking: staker address required")
	}
	staker.normalize()
	if isNegative(staker.Amount) || isNegative(staker.Reward) {
		return fmt.Errorf("%w: negative staker balance for %s", ErrInvalidInput, staker.Address)
	}
	return s.put(stakerKey(staker.Address), staker)
}

// DeleteStaker removes a staker record.
func (s *Store) DeleteStaker(addr string) error {
	return s.kv.Delete(stakerKey(addr))
}

// RangeStakers implements State.
func (s *Store) RangeStakers(startAfter string, limit int, fn func(*Staker) error) error {
	var start []byte
	if startAfter != "" {
		start = exclusiveStart(stakerKey(startAfter))
	}
	it := s.kv.NewIterator(stakerPrefix, start)
	defer it.Release()
	visited := 0
	for it.Next() {
		if limit > 0 && visited >= limit {
			break
		}
		staker := new(Staker)
		if err := rlp.DecodeBytes(it.Value(), staker); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrPaginationDecodeFailed, it.Key(), err)
		}
		staker.normalize()
		visited++
		if err := fn(staker); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPaginationDecodeFailed, err)
	}
	return nil
}

// RosterAdd enrols an address in the sweep roster. Adding twice is a no-op.
func (s *Store) RosterAdd(addr string) error {
	return s.kv.Put(rosterKey(addr), rosterPresent)
}

// RosterRemove drops an address from the sweep roster.
func (s *Store) RosterRemove(addr string) error {
	return s.kv.Delete(rosterKey(addr))
}

// RosterMembers returns the roster in address order.
func (s *Store) RosterMembers() ([]string, error) {
	it := s.kv.NewIterator(rosterPrefix, nil)
	defer it.Release()
	var members []string
	for it.Next() {
		members = append(members, string(it.Key()[len(rosterPrefix):]))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return members, nil
}

// Version loads the contract identity record.
func (s *Store) Version() (*ContractVersion, bool, error) {
	v := new(ContractVersion)
	ok, err := s.get(versionKey, v)
	if err != nil || !ok {
		return nil, false, err
	}
	return v, true, nil
}

// PutVersion persists the contract identity record.
func (s *Store) PutVersion(v *ContractVersion) error {
	if v == nil {
		return errors.New("staking: nil version")
	}
	return s.put(versionKey, v)
}
