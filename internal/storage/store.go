// Package storage records simulated flights on disk: one directory per run
// holding metadata.json and a flight.csv time series.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/edgeflight/internal/flight"
	"github.com/san-kum/edgeflight/internal/sim"
	"gonum.org/v1/gonum/spatial/r3"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Timestamp           time.Time          `json:"timestamp"`
	Steps               int                `json:"steps"`
	Replans             int                `json:"replans"`
	Fallbacks           int                `json:"fallbacks"`
	FailsafeActivations int                `json:"failsafe_activations"`
	PlannerSuccessRate  float64            `json:"planner_success_rate"`
	PlannerLatencyP99   time.Duration      `json:"planner_latency_p99_ns"`
	Metrics             map[string]float64 `json:"metrics"`
}

var header = []string{
	"time",
	"x", "y", "z", "vx", "vy", "vz",
	"qw", "qx", "qy", "qz", "wx", "wy", "wz",
	"sp_x", "sp_y", "sp_z",
	"thrust", "tx", "ty", "tz",
}

// Save writes result under its run id and returns that id.
func (s *Store) Save(name string, result *sim.Result) (string, error) {
	runID := result.RunID.String()
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:                  runID,
		Name:                name,
		Timestamp:           time.Now(),
		Steps:               result.StepsTaken,
		Replans:             result.Replans,
		Fallbacks:           result.Fallbacks,
		FailsafeActivations: result.FailsafeActivations,
		PlannerSuccessRate:  result.PlannerStats.SuccessRate,
		PlannerLatencyP99:   result.PlannerStats.LatencyP99,
		Metrics:             result.Metrics,
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "flight.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(header); err != nil {
		return "", err
	}
	for i, st := range result.States {
		// the final state has no command or setpoint after it
		var sp flight.Setpoint
		var u flight.ControlCommand
		if i < len(result.Commands) {
			sp, u = result.Setpoints[i], result.Commands[i]
		}
		q := st.Attitude
		row := formatRow(result.Times[i],
			st.Position.X, st.Position.Y, st.Position.Z,
			st.Velocity.X, st.Velocity.Y, st.Velocity.Z,
			q.Real, q.Imag, q.Jmag, q.Kmag,
			st.AngularVelocity.X, st.AngularVelocity.Y, st.AngularVelocity.Z,
			sp.Position.X, sp.Position.Y, sp.Position.Z,
			u.Thrust, u.Torque.X, u.Torque.Y, u.Torque.Z,
		)
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return runID, nil
}

func formatRow(vals ...float64) []string {
	row := make([]string, len(vals))
	for i, v := range vals {
		row[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return row
}

// List returns the metadata of every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})

	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadTrack reads back the recorded times and positions of a run.
func (s *Store) LoadTrack(runID string) ([]float64, []r3.Vec, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "flight.csv"))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return []float64{}, []r3.Vec{}, nil
	}

	times := make([]float64, 0, len(records)-1)
	track := make([]r3.Vec, 0, len(records)-1)
	for i, record := range records[1:] {
		var vals [4]float64
		for j := range vals {
			vals[j], err = strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("storage: row %d column %d: %w", i+1, j, err)
			}
		}
		times = append(times, vals[0])
		track = append(track, r3.Vec{X: vals[1], Y: vals[2], Z: vals[3]})
	}

	return times, track, nil
}
