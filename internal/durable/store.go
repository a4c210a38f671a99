// Package durable implements the append-only receipt/error log and the
// replay logic that reconstructs in-memory mining state across restarts.
package durable

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"github.com/bardlex/powminer/internal/domain"
	"github.com/bardlex/powminer/pkg/errors"
)

// record is the on-wire shape of one JSONL line. Exactly one of Receipt
// or ErrorRecord is non-nil, distinguished by Kind.
type record struct {
	Kind    string              `json:"kind"`
	Receipt *domain.Receipt     `json:"receipt,omitempty"`
	Error   *domain.ErrorRecord `json:"error_record,omitempty"`
}

const (
	kindReceipt = "receipt"
	kindError   = "error"
)

// Store defines the contract for the append-only log, allowing the
// coordinator and submission gate to be tested without a real file.
type Store interface {
	AppendReceipt(r domain.Receipt) error
	AppendError(e domain.ErrorRecord) error
	Replay() (*State, error)
	Close() error
}

var _ Store = (*FileStore)(nil)

// State is the in-memory reconstruction produced by Replay.
type State struct {
	SubmittedHashes         map[string]struct{}
	SolvedAddressChallenges map[string]map[string]struct{}
	UserSolutionsCount      int64
	DevFeeSolutionsCount    int64
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		SubmittedHashes:         make(map[string]struct{}),
		SolvedAddressChallenges: make(map[string]map[string]struct{}),
	}
}

// IsSolved reports whether address already has an accepted receipt for challengeID.
func (s *State) IsSolved(address, challengeID string) bool {
	challenges, ok := s.SolvedAddressChallenges[address]
	if !ok {
		return false
	}
	_, ok = challenges[challengeID]
	return ok
}

// MarkSolved records address as solved for challengeID.
func (s *State) MarkSolved(address, challengeID string) {
	if s.SolvedAddressChallenges[address] == nil {
		s.SolvedAddressChallenges[address] = make(map[string]struct{})
	}
	s.SolvedAddressChallenges[address][challengeID] = struct{}{}
}

// FileStore is a JSONL, append-only file-backed Store. One JSON object
// per line; O_APPEND guarantees each Write is atomic with respect to
// other appenders on POSIX systems for writes below the pipe buffer size.
type FileStore struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if necessary) the JSONL file at path for appending.
func Open(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDurable, "open_store", "failed to open durable store").
			WithContext("path", path)
	}
	return &FileStore{file: f}, nil
}

// AppendReceipt appends a Receipt record.
func (fs *FileStore) AppendReceipt(r domain.Receipt) error {
	return fs.appendLine(record{Kind: kindReceipt, Receipt: &r})
}

// AppendError appends an ErrorRecord.
func (fs *FileStore) AppendError(e domain.ErrorRecord) error {
	return fs.appendLine(record{Kind: kindError, Error: &e})
}

func (fs *FileStore) appendLine(rec record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDurable, "marshal_record", "failed to marshal durable record")
	}
	line = append(line, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.file.Write(line); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDurable, "append_record", "failed to append durable record")
	}
	return nil
}

// Replay reads the log path this store was opened on from the beginning
// and reconstructs submitted_hashes, solved_address_challenges, and the
// user/dev-fee solution counters. Replaying the same log twice yields
// the same State by construction: this is a pure fold over the log.
func (fs *FileStore) Replay() (*State, error) {
	fs.mu.Lock()
	path := fs.file.Name()
	fs.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeDurable, "replay_open", "failed to open durable store for replay")
	}
	defer f.Close()

	state := NewState()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}

		switch rec.Kind {
		case kindReceipt:
			if rec.Receipt == nil {
				continue
			}
			state.SubmittedHashes[rec.Receipt.Hash] = struct{}{}
			state.MarkSolved(rec.Receipt.Address, rec.Receipt.ChallengeID)
			if rec.Receipt.IsDevFee {
				state.DevFeeSolutionsCount++
			} else {
				state.UserSolutionsCount++
			}
		case kindError:
			// Error records are not replayed into solved-set or counters;
			// they exist for operator visibility only.
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDurable, "replay_scan", "failed to scan durable store")
	}

	return state, nil
}

// Close closes the underlying file handle.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
