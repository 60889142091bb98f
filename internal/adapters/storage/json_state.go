package storage

// json_state.go — persistencia atómica de snapshots de calibración.
//
// Un json.Marshal directo sobre el archivo no es atómico: si el proceso
// muere a mitad de escritura, el archivo queda con JSON parcial y el bot
// no puede arrancar. Estrategia:
//
//   Save → archivo .tmp → validar → backup del actual → rename(2)
//
// El rename es atómico en POSIX: el archivo es siempre la versión vieja
// o la nueva, nunca una a medias. Load intenta el archivo principal,
// cae al .backup si está corrupto, y solo devuelve error si ninguno de
// los dos es legible.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// JSONStateStore implementa ports.StateStore sobre un archivo JSON con
// escritura atómica y backup de la última versión buena.
type JSONStateStore struct {
	path string
}

// NewJSONStateStore crea el store para la ruta dada. No toca el disco
// hasta el primer Save/Load.
func NewJSONStateStore(path string) *JSONStateStore {
	return &JSONStateStore{path: path}
}

// Save serializa v y lo escribe de forma atómica, conservando la versión
// anterior como backup.
func (s *JSONStateStore) Save(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage.JSONStateStore.Save: marshal %q: %w", s.path, err)
	}

	tmp := replaceExt(s.path, ".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage.JSONStateStore.Save: write temp %q: %w", tmp, err)
	}

	// Releer y validar antes de tocar el archivo real: detecta errores
	// de filesystem que WriteFile no reportó.
	written, err := os.ReadFile(tmp)
	if err != nil || !json.Valid(written) {
		os.Remove(tmp)
		return fmt.Errorf("storage.JSONStateStore.Save: verify temp %q failed", tmp)
	}

	// Backup solo si el archivo actual es JSON válido. Si ya está
	// corrupto, el .backup de la escritura anterior sigue siendo bueno.
	if current, err := os.ReadFile(s.path); err == nil {
		if json.Valid(current) {
			backup := replaceExt(s.path, ".backup")
			if err := os.WriteFile(backup, current, 0o644); err != nil {
				slog.Warn("backup write failed, continuing", "path", backup, "err", err)
			}
		} else {
			slog.Warn("existing state file invalid, backup retained from previous write", "path", s.path)
		}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage.JSONStateStore.Save: rename %q: %w", s.path, err)
	}
	slog.Debug("state saved", "path", s.path, "bytes", len(data))
	return nil
}

// Load deserializa el último estado guardado en v.
//
// Cadena de fallback: archivo principal → .backup → (false, nil) si no
// existe ninguno. Solo devuelve error cuando ambos existen y ninguno se
// puede parsear; el caller decide si arranca con estado vacío.
func (s *JSONStateStore) Load(v any) (bool, error) {
	mainErr := tryLoad(s.path, v)
	if mainErr == nil {
		return true, nil
	}

	backup := replaceExt(s.path, ".backup")
	backupErr := tryLoad(backup, v)
	if backupErr == nil {
		slog.Warn("state loaded from backup, main file was corrupted",
			"path", s.path,
			"err", mainErr,
		)
		return true, nil
	}

	if errors.Is(mainErr, fs.ErrNotExist) && errors.Is(backupErr, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("storage.JSONStateStore.Load: %q and backup unreadable: %w", s.path, mainErr)
}

func tryLoad(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %q: %w", path, err)
	}
	return nil
}

// replaceExt cambia la extensión del archivo: edge_tracker.json →
// edge_tracker.backup. Mantiene el mismo directorio para que el rename
// no cruce filesystems.
func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
