package wal

import (
	"fmt"
	"os"
	"path/filepath"
)

func newSegment(segmentID uint64, basePath string) *Segment {
	fileName := fmt.Sprintf("wal_%016x.log", segmentID)
	return &Segment{
		SegmentID: segmentID,
		FilePath:  filepath.Join(basePath, fileName),
	}
}

// Open opens the segment file in append-only mode.
func (s *Segment) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.File != nil {
		return nil
	}

	file, err := os.OpenFile(s.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	s.File = file
	s.Size = stat.Size()
	return nil
}

// Append writes one encoded record. The file was opened with O_APPEND so
// the write itself is atomic at the OS level; no fsync happens here.
func (s *Segment) Append(data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.File == nil {
		return 0, fmt.Errorf("wal: segment %d not opened", s.SegmentID)
	}
	offset := s.Size
	n, err := s.File.Write(data)
	if err != nil {
		return 0, err
	}
	s.Size += int64(n)
	return offset, nil
}

// Sync forces the OS buffer to disk — after this call the segment's
// contents are durable even across a crash.
func (s *Segment) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.File == nil {
		return fmt.Errorf("wal: segment %d not opened", s.SegmentID)
	}
	return s.File.Sync()
}

func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.File == nil {
		return nil
	}
	err := s.File.Close()
	s.File = nil
	return err
}

func (s *Segment) IsFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Size >= SegmentSize
}
