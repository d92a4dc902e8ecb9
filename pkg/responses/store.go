package responses

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"

	"github.com/applegrew/jdcbot-sub001/pkg/logger"
)

// Bucket names.
var (
	bucketResponses = []byte("responses") // ID -> Response
	bucketTriggers  = []byte("triggers")  // lower-cased trigger -> ID (index)
)

// store implements the Store interface using BoltDB.
type store struct {
	db     *bolt.DB
	logger logger.Logger
	config Config
}

// New opens (or creates) the responses database.
func New(cfg Config, log logger.Logger) (Store, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	dbPath := ExpandHome(cfg.DBPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, createErr := tx.CreateBucketIfNotExists(bucketResponses); createErr != nil {
			return fmt.Errorf("failed to create responses bucket: %w", createErr)
		}
		if _, createErr := tx.CreateBucketIfNotExists(bucketTriggers); createErr != nil {
			return fmt.Errorf("failed to create triggers bucket: %w", createErr)
		}
		return nil
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("failed to close database after initialization error",
				"error", closeErr)
		}
		return nil, err
	}

	log.Info("responses store opened", "db_path", dbPath)

	return &store{
		db:     db,
		logger: log,
		config: cfg,
	}, nil
}

// Add implements Store.Add.
func (s *store) Add(r *Response) error {
	if err := normalize(r); err != nil {
		return err
	}

	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		return s.insert(tx, r)
	})
}

func (s *store) insert(tx *bolt.Tx, r *Response) error {
	responses := tx.Bucket(bucketResponses)
	triggers := tx.Bucket(bucketTriggers)

	key := triggerKey(r.Trigger)
	if triggers.Get(key) != nil {
		return fmt.Errorf("%w: %q", ErrTriggerConflict, r.Trigger)
	}

	id, err := responses.NextSequence()
	if err != nil {
		return fmt.Errorf("failed to allocate response id: %w", err)
	}
	r.ID = id

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if err := responses.Put(itob(id), data); err != nil {
		return fmt.Errorf("failed to store response: %w", err)
	}
	if err := triggers.Put(key, itob(id)); err != nil {
		return fmt.Errorf("failed to store trigger index: %w", err)
	}

	s.logger.Info("response added", "id", id, "trigger", r.Trigger, "mode", r.Mode)
	return nil
}

// Get implements Store.Get.
func (s *store) Get(id uint64) (*Response, error) {
	var r *Response

	err := s.db.View(func(tx *bolt.Tx) error {
		var getErr error
		r, getErr = get(tx, id)
		return getErr
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

func get(tx *bolt.Tx, id uint64) (*Response, error) {
	data := tx.Bucket(bucketResponses).Get(itob(id))
	if data == nil {
		return nil, fmt.Errorf("%w: id %d", ErrResponseNotFound, id)
	}

	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &r, nil
}

// GetByTrigger implements Store.GetByTrigger.
func (s *store) GetByTrigger(trigger string) (*Response, error) {
	if strings.TrimSpace(trigger) == "" {
		return nil, ErrEmptyTrigger
	}

	var r *Response

	err := s.db.View(func(tx *bolt.Tx) error {
		idBytes := tx.Bucket(bucketTriggers).Get(triggerKey(trigger))
		if idBytes == nil {
			return fmt.Errorf("%w: %q", ErrResponseNotFound, trigger)
		}

		var getErr error
		r, getErr = get(tx, btoi(idBytes))
		return getErr
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Update implements Store.Update.
func (s *store) Update(id uint64, r *Response) error {
	if err := normalize(r); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return s.replace(tx, id, r)
	})
}

func (s *store) replace(tx *bolt.Tx, id uint64, r *Response) error {
	triggers := tx.Bucket(bucketTriggers)

	existing, err := get(tx, id)
	if err != nil {
		return err
	}

	oldKey, newKey := triggerKey(existing.Trigger), triggerKey(r.Trigger)
	if string(oldKey) != string(newKey) {
		if triggers.Get(newKey) != nil {
			return fmt.Errorf("%w: %q", ErrTriggerConflict, r.Trigger)
		}
		if err := triggers.Delete(oldKey); err != nil {
			return fmt.Errorf("failed to delete old trigger index: %w", err)
		}
		if err := triggers.Put(newKey, itob(id)); err != nil {
			return fmt.Errorf("failed to store new trigger index: %w", err)
		}
	}

	r.ID = id
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if err := tx.Bucket(bucketResponses).Put(itob(id), data); err != nil {
		return fmt.Errorf("failed to update response: %w", err)
	}

	s.logger.Info("response updated", "id", id, "trigger", r.Trigger)
	return nil
}

// Delete implements Store.Delete.
func (s *store) Delete(id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		existing, err := get(tx, id)
		if err != nil {
			// Missing responses are not an error.
			return nil
		}

		if err := tx.Bucket(bucketResponses).Delete(itob(id)); err != nil {
			return fmt.Errorf("failed to delete response: %w", err)
		}
		if err := tx.Bucket(bucketTriggers).Delete(triggerKey(existing.Trigger)); err != nil {
			return fmt.Errorf("failed to delete trigger index: %w", err)
		}

		s.logger.Info("response deleted", "id", id, "trigger", existing.Trigger)
		return nil
	})
}

// List implements Store.List.
func (s *store) List() ([]*Response, error) {
	list := make([]*Response, 0, 16)

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResponses).ForEach(func(k, v []byte) error {
			var r Response
			if unmarshalErr := json.Unmarshal(v, &r); unmarshalErr != nil {
				s.logger.Warn("failed to unmarshal response",
					"id", btoi(k),
					"error", unmarshalErr)
				return nil // Skip invalid entries.
			}
			list = append(list, &r)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}

	return list, nil
}

// Match implements Store.Match.
func (s *store) Match(text string) (*Response, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil, false
	}

	list, err := s.List()
	if err != nil {
		s.logger.Warn("response lookup failed", "error", err)
		return nil, false
	}

	sort.SliceStable(list, func(i, j int) bool {
		return len(list[i].Trigger) > len(list[j].Trigger)
	})

	for _, r := range list {
		if matches(r, text) {
			return r, true
		}
	}
	return nil, false
}

func matches(r *Response, text string) bool {
	trigger := strings.ToLower(r.Trigger)
	switch r.Mode {
	case ModePrefix:
		return strings.HasPrefix(text, trigger)
	case ModeContains:
		return strings.Contains(text, trigger)
	default:
		return text == trigger
	}
}

// Import implements Store.Import.
func (s *store) Import(path string) (int, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		return 0, fmt.Errorf("failed to read responses file: %w", err)
	}

	var file importFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	for i := range file.Responses {
		if err := normalize(&file.Responses[i]); err != nil {
			return 0, fmt.Errorf("%w: entry %d: %w", ErrInvalidImport, i+1, err)
		}
	}

	now := time.Now()
	err = s.db.Update(func(tx *bolt.Tx) error {
		triggers := tx.Bucket(bucketTriggers)
		for i := range file.Responses {
			r := &file.Responses[i]
			if idBytes := triggers.Get(triggerKey(r.Trigger)); idBytes != nil {
				if err := s.replace(tx, btoi(idBytes), r); err != nil {
					return err
				}
				continue
			}
			r.CreatedAt, r.UpdatedAt = now, now
			if err := s.insert(tx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("responses imported", "path", path, "count", len(file.Responses))
	return len(file.Responses), nil
}

// Close implements Store.Close.
func (s *store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.logger.Info("responses store closed")
	return nil
}

// normalize validates r and fills in the default mode and scope.
func normalize(r *Response) error {
	if r == nil {
		return ErrInvalidResponse
	}

	r.Trigger = strings.TrimSpace(r.Trigger)
	if r.Trigger == "" {
		return ErrEmptyTrigger
	}
	if strings.TrimSpace(r.Reply) == "" {
		return ErrEmptyReply
	}

	if r.Mode == "" {
		r.Mode = ModeExact
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, r.Mode)
	}

	switch r.Scope {
	case "":
		r.Scope = ScopeAll
	case ScopeAll, ScopePublic, ScopePrivate:
	default:
		return fmt.Errorf("%w: scope %q", ErrInvalidMode, r.Scope)
	}

	return nil
}

func triggerKey(trigger string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(trigger)))
}

// itob encodes an ID as a big-endian key so ForEach walks in ID order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	return filepath.Join(homeDir, path[2:])
}
