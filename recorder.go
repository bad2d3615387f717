package radcap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/sbinet/npyio"
)

// Recorder collects the frames of one capture session and writes them out
// as a single .npy file of int16 samples, named by the session's ULID.
// Downstream analysis reloads the file and reshapes it with the session's
// StreamParams; the flat layout on disk matches what Reorganize consumes.
type Recorder struct {
	Directory string
	SessionID ulid.ULID

	frames  int
	lost    int
	samples []int16
}

// NewRecorder starts a session recording into dir, creating it if needed.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, err
	}
	return &Recorder{Directory: dir, SessionID: ulid.Make()}, nil
}

// Filename is the path the session will be written to.
func (r *Recorder) Filename() string {
	return filepath.Join(r.Directory, r.SessionID.String()+".npy")
}

// AddFrame appends one assembled frame to the session.
func (r *Recorder) AddFrame(f *Frame) {
	for _, s := range f.Data {
		r.samples = append(r.samples, int16(s))
	}
	r.frames++
	r.lost += f.Lost
}

// AddBatch appends the frames of a multi-frame read to the session. The
// batch's leftover belongs to the next read, not to the file.
func (r *Recorder) AddBatch(b *FrameBatch, numFrames int) {
	for _, s := range b.Data {
		r.samples = append(r.samples, int16(s))
	}
	r.frames += numFrames
	r.lost += b.Lost
}

// Frames reports how many frames have been recorded so far.
func (r *Recorder) Frames() int { return r.frames }

// Lost reports the total packets lost across the recorded frames.
func (r *Recorder) Lost() int { return r.lost }

// Close writes the session file and logs a one-line summary.
func (r *Recorder) Close() error {
	f, err := os.Create(r.Filename())
	if err != nil {
		return err
	}
	defer f.Close()
	if err := npyio.Write(f, r.samples); err != nil {
		return fmt.Errorf("writing %s: %w", r.Filename(), err)
	}
	UpdateLogger.Printf("session %s: %d samples, %d packets lost, written to %s",
		r.SessionID, len(r.samples), r.lost, r.Filename())
	return nil
}
