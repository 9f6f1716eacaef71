// checkpoint creates CheckpointIO which stores and restores the
// optimizer state.
package checkpoint

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/simlh/model"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// MAIN is the bucket name for all the checkpoints.
var MAIN = []byte("main")

// Data stores checkpoint data.
type Data struct {
	Parameters map[string]float64
	NLL        float64
	Iter       int
	Final      bool
}

// CheckpointIO saves and loads checkpoints. A nil database disables
// checkpointing.
type CheckpointIO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// NewCheckpointIO creates a new CheckpointIO. Save is expected at most
// every seconds.
func NewCheckpointIO(db *bolt.DB, key []byte, seconds float64) *CheckpointIO {
	return &CheckpointIO{
		db:      db,
		key:     key,
		seconds: seconds,
	}
}

// Save saves checkpoint to the database.
func (s *CheckpointIO) Save(data *Data) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	b, err := json.Marshal(data)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	err = SaveData(s.db, s.key, b)
	if err != nil {
		log.Error("Error saving checkpoint", err)
	}
	return err
}

// Load returns the stored checkpoint or nil if there is none.
func (s *CheckpointIO) Load() (*Data, error) {
	b, err := LoadData(s.db, s.key)
	if err != nil || b == nil {
		return nil, err
	}

	var data *Data
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	if data == nil || len(data.Parameters) == 0 {
		return nil, nil
	}

	state := "unfinished"
	if data.Final {
		state = "finished"
	}
	log.Noticef("Found %s optimization checkpoint (iter=%v, nll=%v)", state, data.Iter, data.NLL)

	return data, nil
}

// Old returns true if the last save was too long ago.
func (s *CheckpointIO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets last checkpoint time to now.
func (s *CheckpointIO) SetNow() {
	s.last = time.Now()
}

// Key returns the checkpoint key for a model and a data set. Vectors
// and matrices are hashed in name order.
func Key(modelName string, data *model.Data) []byte {
	h := xxhash.New()
	h.WriteString(modelName)

	buf := make([]byte, 0, 64)
	float := func(v float64) {
		buf = strconv.AppendFloat(buf[:0], v, 'g', -1, 64)
		buf = append(buf, ' ')
		h.Write(buf)
	}

	names := make([]string, 0, len(data.Vectors))
	for name := range data.Vectors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.WriteString("\x00v" + name + "\x00")
		for _, v := range data.Vectors[name] {
			float(v)
		}
	}

	names = names[:0]
	for name := range data.Matrices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := data.Matrices[name]
		r, c := m.Dims()
		h.WriteString("\x00m" + name + "\x00" + strconv.Itoa(r) + "x" + strconv.Itoa(c) + "\x00")
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				float(m.At(i, j))
			}
		}
	}

	return []byte(modelName + "-" + strconv.FormatUint(h.Sum64(), 16))
}

// SaveData saves values in bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// LoadData loads data from bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}
		// the value is only valid within the transaction
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
