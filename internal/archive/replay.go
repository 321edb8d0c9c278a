package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"pinball-gacha/server/internal/sim"
)

// replayLog writes one round's broadcast frames as zstd-compressed JSONL.
// Instances belong to the store's writer goroutine and need no locking.
type replayLog struct {
	path string
	f    *os.File
	enc  *zstd.Encoder
	w    *bufio.Writer
}

func newReplayLog(path string) (*replayLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &replayLog{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 64*1024),
	}, nil
}

func (l *replayLog) append(snap sim.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *replayLog) close() error {
	if l == nil {
		return nil
	}
	var err error
	if l.w != nil {
		_ = l.w.Flush()
	}
	if l.enc != nil {
		err = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	l.w = nil
	return err
}

// ReplayPath locates the replay log for a session beneath the archive root.
func ReplayPath(dir, sessionID string) string {
	return filepath.Join(dir, "replays", sessionID+".jsonl.zst")
}

// ReadReplay decodes every frame of a sealed replay log in write order.
func ReadReplay(path string) ([]sim.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var frames []sim.Snapshot
	for sc.Scan() {
		var snap sim.Snapshot
		if err := json.Unmarshal(sc.Bytes(), &snap); err != nil {
			return nil, fmt.Errorf("archive: frame %d: %w", len(frames), err)
		}
		frames = append(frames, snap)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}
