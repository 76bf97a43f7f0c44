package reportstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
)

// File extensions of an entry.
const (
	bodyExtension = ".lz4"
	metaExtension = ".json"
)

const metaIndent = "  "

func encodeBody(w io.Writer, body []byte) error {
	zw := lz4.NewWriter(w)

	_, err := zw.Write(body)
	if err != nil {
		return fmt.Errorf("lz4 write: %w", err)
	}

	err = zw.Close()
	if err != nil {
		return fmt.Errorf("lz4 close: %w", err)
	}

	return nil
}

func decodeBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(lz4.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("lz4 read: %w", err)
	}

	return body, nil
}

func encodeMeta(w io.Writer, meta Meta) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", metaIndent)

	err := encoder.Encode(meta)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

func decodeMeta(r io.Reader) (Meta, error) {
	var meta Meta

	err := json.NewDecoder(r).Decode(&meta)
	if err != nil {
		return Meta{}, fmt.Errorf("json decode: %w", err)
	}

	return meta, nil
}

// writeFile writes through encode into a temporary file in dir and renames
// it into place, so readers never observe a partial file.
func writeFile(dir, name string, encode func(io.Writer) error) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	encodeErr := encode(tmp)
	closeErr := tmp.Close()

	err = errors.Join(encodeErr, closeErr)
	if err == nil {
		err = os.Rename(tmp.Name(), filepath.Join(dir, name))
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}
