// Package chime implements the Chime Store: an on-disk WAV library that is
// pre-encoded once at startup into Opus frame sequences indexed by name.
// Disk layout and atomic-write discipline follow the teacher's
// internal/blob package (temp-file-then-rename, UUID-free here since chimes
// are indexed by their validated name rather than a generated id); WAV
// decoding uses github.com/go-audio/wav + github.com/go-audio/audio, the
// library the broader example pack reaches for (voxworld-voxaudio,
// ijakenorton-Roundtable) since the teacher itself has no WAV-domain code.
package chime

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/go-audio/wav"

	"github.com/Bri-J-C/ha-intercom-sub001/internal/codec"
)

const (
	// ReservedName is undeletable and must always exist.
	ReservedName = "doorbell"

	// MaxUploadSize bounds multipart chime uploads.
	MaxUploadSize = 5 * 1024 * 1024

	wavSampleRate = 16000
	wavBitDepth   = 16
	wavChannels   = 1
)

var nameRE = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Error is a typed chime-store failure. Kind is one of BadWav, TooLarge,
// ReservedName, NotFound.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("[chime] %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Chime is a pre-encoded chime: name, Opus frame sequence, total duration.
type Chime struct {
	Name       string
	Frames     [][]byte
	DurationMs int
}

// Store holds every known chime in memory, indexed by lowercase name, and
// mirrors additions/deletions to dir on disk. The active chime selection is
// a single process-wide name, persisted via the store's persist callback.
type Store struct {
	mu      sync.RWMutex
	dir     string
	chimes  map[string]*Chime
	active  string
	persist func(active string) error
	log     *slog.Logger
	codec   *codec.Codec
}

// New creates a Store rooted at dir. It does not load anything; call
// LoadAll to seed from disk.
func New(dir string, c *codec.Codec, persist func(active string) error, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		dir:     dir,
		chimes:  make(map[string]*Chime),
		persist: persist,
		log:     log,
		codec:   c,
		active:  ReservedName,
	}
}

// LoadAll walks dir for *.wav files, validates and pre-encodes each one.
// doorbell.wav must already exist in dir: nothing in the hub seeds dir with
// default chimes (startup only creates the directory), and LoadAll returns
// an error when doorbell is missing.
func (s *Store) LoadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("[chime] read dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".wav" {
			continue
		}
		name := nameFromFilename(e.Name())
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			s.log.Warn("chime load failed", "name", name, "error", err)
			continue
		}
		c, err := s.buildChime(name, data)
		if err != nil {
			s.log.Warn("chime rejected", "name", name, "error", err)
			continue
		}
		s.chimes[name] = c
	}

	if _, ok := s.chimes[ReservedName]; !ok {
		return fmt.Errorf("[chime] required chime %q missing from %s", ReservedName, s.dir)
	}
	return nil
}

func nameFromFilename(filename string) string {
	base := filename[:len(filename)-len(filepath.Ext(filename))]
	return strings.ToLower(base)
}

// buildChime validates 16 kHz mono 16-bit PCM and pre-encodes it to the same
// frame sequence any live speaker would produce.
func (s *Store) buildChime(name string, wavData []byte) (*Chime, error) {
	if !nameRE.MatchString(name) {
		return nil, &Error{Kind: "BadWav", Err: fmt.Errorf("invalid chime name %q", name)}
	}

	dec := wav.NewDecoder(bytes.NewReader(wavData))
	if !dec.IsValidFile() {
		return nil, &Error{Kind: "BadWav", Err: fmt.Errorf("not a valid WAV file")}
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &Error{Kind: "BadWav", Err: err}
	}
	if dec.SampleRate != wavSampleRate || dec.NumChans != wavChannels || dec.BitDepth != wavBitDepth {
		return nil, &Error{Kind: "BadWav", Err: fmt.Errorf(
			"want %d Hz mono 16-bit, got %d Hz %d ch %d-bit", wavSampleRate, dec.SampleRate, dec.NumChans, dec.BitDepth)}
	}

	samples := buf.AsIntBuffer().Data
	pcm := make([]int16, len(samples))
	for i, v := range samples {
		pcm[i] = int16(v)
	}

	var frames [][]byte
	for off := 0; off+codec.FrameSize <= len(pcm); off += codec.FrameSize {
		enc, err := s.codec.Encode(pcm[off : off+codec.FrameSize])
		if err != nil {
			return nil, &Error{Kind: "BadWav", Err: err}
		}
		frames = append(frames, append([]byte(nil), enc...))
	}
	// Pad a final partial frame with silence so no source samples are lost;
	// playback duration is the source length rounded up to whole 20 ms frames.
	if rem := len(pcm) % codec.FrameSize; rem != 0 {
		last := make([]int16, codec.FrameSize)
		copy(last, pcm[len(pcm)-rem:])
		enc, err := s.codec.Encode(last)
		if err != nil {
			return nil, &Error{Kind: "BadWav", Err: err}
		}
		frames = append(frames, append([]byte(nil), enc...))
	}

	durationMs := len(frames) * 20
	return &Chime{Name: name, Frames: frames, DurationMs: durationMs}, nil
}

// List returns the known chime names, sorted by no particular order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.chimes))
	for n := range s.chimes {
		names = append(names, n)
	}
	return names
}

// Get returns the frame sequence for name, or NotFound.
func (s *Store) Get(name string) (*Chime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chimes[name]
	if !ok {
		return nil, &Error{Kind: "NotFound", Err: fmt.Errorf("chime %q not found", name)}
	}
	return c, nil
}

// Upload validates, pre-encodes, and persists a new or replacement chime
// from a multipart file body. Rejects bodies over MaxUploadSize.
func (s *Store) Upload(name string, r io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return fmt.Errorf("[chime] read upload: %w", err)
	}
	if len(data) > MaxUploadSize {
		return &Error{Kind: "TooLarge", Err: fmt.Errorf("upload exceeds %d bytes", MaxUploadSize)}
	}

	c, err := s.buildChime(name, data)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "upload-*.wav")
	if err != nil {
		return fmt.Errorf("[chime] create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[chime] write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[chime] close temp: %w", err)
	}
	finalPath := filepath.Join(s.dir, name+".wav")
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return fmt.Errorf("[chime] rename: %w", err)
	}

	s.mu.Lock()
	s.chimes[name] = c
	s.mu.Unlock()

	s.log.Info("chime uploaded", "name", name, "duration_ms", c.DurationMs)
	return nil
}

// Delete removes a chime. doorbell can never be deleted.
func (s *Store) Delete(name string) error {
	if name == ReservedName {
		return &Error{Kind: "ReservedName", Err: fmt.Errorf("%q cannot be deleted", ReservedName)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chimes[name]; !ok {
		return &Error{Kind: "NotFound", Err: fmt.Errorf("chime %q not found", name)}
	}
	delete(s.chimes, name)
	if err := os.Remove(filepath.Join(s.dir, name+".wav")); err != nil && !os.IsNotExist(err) {
		s.log.Warn("chime file delete failed", "name", name, "error", err)
	}
	if s.active == name {
		s.active = ReservedName
	}
	return nil
}

// SetActive selects the process-wide active chime name and persists it.
func (s *Store) SetActive(name string) error {
	s.mu.Lock()
	if _, ok := s.chimes[name]; !ok {
		s.mu.Unlock()
		return &Error{Kind: "NotFound", Err: fmt.Errorf("chime %q not found", name)}
	}
	s.active = name
	s.mu.Unlock()

	if s.persist != nil {
		return s.persist(name)
	}
	return nil
}

// Active returns the currently-selected chime.
func (s *Store) Active() (*Chime, error) {
	s.mu.RLock()
	name := s.active
	s.mu.RUnlock()
	return s.Get(name)
}
