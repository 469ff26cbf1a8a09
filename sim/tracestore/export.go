package tracestore

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/chunksim/sim"
)

// TraceVersion is the current export format version.
const TraceVersion = 1

// TraceHeader captures metadata for an exported warm-up trace.
type TraceHeader struct {
	Version     int    `yaml:"trace_version"`
	Workload    string `yaml:"workload"`
	TotalMoment int64  `yaml:"total_moment"`
	Streams     int    `yaml:"streams"`
	CreatedAt   string `yaml:"created_at,omitempty"`
}

// CSV column headers for the exported trace data. One row per recorded access.
var traceColumns = []string{"chunk_id", "device", "seq", "moment"}

// Export writes the trace header (YAML) and one CSV row per recorded access to separate files.
func Export(workload string, snap sim.Snapshot, headerPath, dataPath string) error {
	header := TraceHeader{
		Version:     TraceVersion,
		Workload:    workload,
		TotalMoment: int64(snap.TotalMoment),
		Streams:     len(snap.Entries),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	headerData, err := yaml.Marshal(&header)
	if err != nil {
		return fmt.Errorf("marshaling trace header: %w", err)
	}
	if err := os.WriteFile(headerPath, headerData, 0644); err != nil {
		return fmt.Errorf("writing trace header: %w", err)
	}

	file, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("creating trace data file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(traceColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, e := range snap.Entries {
		for seq, mom := range e.Moments {
			row := []string{
				strconv.Itoa(int(e.Chunk)),
				e.Device.String(),
				strconv.Itoa(seq),
				strconv.FormatInt(int64(mom), 10),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("writing CSV row for chunk %d: %w", e.Chunk, err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing trace data: %w", err)
	}
	return nil
}

// Import reads an exported trace back. Rows of one stream must be contiguous and in seq order.
func Import(headerPath, dataPath string) (*TraceHeader, sim.Snapshot, error) {
	headerData, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, sim.Snapshot{}, fmt.Errorf("reading trace header: %w", err)
	}
	var header TraceHeader
	if err := yaml.Unmarshal(headerData, &header); err != nil {
		return nil, sim.Snapshot{}, fmt.Errorf("parsing trace header: %w", err)
	}
	if header.Version != TraceVersion {
		return nil, sim.Snapshot{}, fmt.Errorf("unsupported trace_version %d", header.Version)
	}

	file, err := os.Open(dataPath)
	if err != nil {
		return nil, sim.Snapshot{}, fmt.Errorf("opening trace data: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(traceColumns)

	// Skip header row
	if _, err := reader.Read(); err != nil {
		return nil, sim.Snapshot{}, fmt.Errorf("reading CSV header: %w", err)
	}

	snap := sim.Snapshot{TotalMoment: sim.Moment(header.TotalMoment)}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, sim.Snapshot{}, fmt.Errorf("reading CSV row: %w", err)
		}
		chunkID, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, sim.Snapshot{}, fmt.Errorf("line %d: invalid chunk_id: %w", line, err)
		}
		dev, err := sim.ParseDevice(row[1])
		if err != nil {
			return nil, sim.Snapshot{}, fmt.Errorf("line %d: %w", line, err)
		}
		seq, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, sim.Snapshot{}, fmt.Errorf("line %d: invalid seq: %w", line, err)
		}
		moment, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil {
			return nil, sim.Snapshot{}, fmt.Errorf("line %d: invalid moment: %w", line, err)
		}

		n := len(snap.Entries)
		if seq == 0 {
			snap.Entries = append(snap.Entries, sim.TraceEntry{Chunk: sim.ChunkID(chunkID), Device: dev})
			n++
		} else if n == 0 || snap.Entries[n-1].Chunk != sim.ChunkID(chunkID) ||
			snap.Entries[n-1].Device != dev || len(snap.Entries[n-1].Moments) != seq {
			return nil, sim.Snapshot{}, fmt.Errorf("line %d: seq %d of chunk %d on %s is out of order", line, seq, chunkID, dev)
		}
		snap.Entries[n-1].Moments = append(snap.Entries[n-1].Moments, sim.Moment(moment))
	}
	return &header, snap, nil
}
