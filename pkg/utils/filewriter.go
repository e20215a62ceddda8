package utils

import (
	"bufio"
	"os"
)

type Writer interface {
	Write(p []byte) (n int, err error)
	Flush() error
}

// FileManager abstracts the file-system calls made by the export core so
// tests can run against an in-memory implementation.
type FileManager interface {
	Create(name string) (Writer, error)
	Close() error
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	PathExists(path string) bool
}

type OSFileManager struct {
	Outfile *os.File
	Writer  Writer
}

func (osfm *OSFileManager) Create(name string) (Writer, error) {
	var err error
	osfm.Outfile, err = os.Create(name)
	if err != nil {
		return nil, err
	}
	osfm.Writer = bufio.NewWriter(osfm.Outfile)
	return osfm.Writer, nil
}

func (osfm *OSFileManager) Close() error {
	if err := osfm.Writer.Flush(); err != nil {
		return err
	}
	return osfm.Outfile.Close()
}

func (osfm *OSFileManager) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (osfm *OSFileManager) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (osfm *OSFileManager) PathExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
