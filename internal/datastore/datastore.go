// Package datastore persists drawings, extraction results and
// validation sessions behind a GORM-backed store.
package datastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"pidreview/internal/logger"
	"pidreview/internal/validation"
	"pidreview/pkg/models"
)

// Interface defines the database operations the service needs. It
// doubles as the validation.Saver used by the auto-saver.
type Interface interface {
	Open() error
	Close() error

	SaveSession(ctx context.Context, snap validation.Snapshot) error
	LoadSession(ctx context.Context, drawingID string) (*validation.Snapshot, error)

	SaveExtraction(ctx context.Context, drawingID string, symbols []models.DetectedSymbol, texts []models.ExtractedText, lines []models.LineEntity) error
	LoadExtraction(ctx context.Context, drawingID string) ([]models.DetectedSymbol, []models.ExtractedText, []models.LineEntity, error)
	DeleteExtraction(ctx context.Context, drawingID string) error
}

// ErrNotFound is returned when no extraction exists for the requested
// drawing.
var ErrNotFound = errors.New("datastore: record not found")

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB  *gorm.DB
	log zerolog.Logger
}

func (ds *DataStore) migrate() error {
	return ds.DB.AutoMigrate(
		&models.DetectedSymbol{},
		&models.ExtractedText{},
		&models.LineEntity{},
		&models.ValidationSession{},
		&models.EditAction{},
	)
}

// SaveSession persists a session snapshot inside one transaction. The
// stored version is compared first: a writer carrying an older version
// than what is on disk gets ErrStaleSession and nothing is written.
func (ds *DataStore) SaveSession(ctx context.Context, snap validation.Snapshot) error {
	session := snap.Session

	return ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored models.ValidationSession
		err := tx.Where("id = ?", session.ID).First(&stored).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first save of this session
		case err != nil:
			return fmt.Errorf("datastore: reading stored session: %w", err)
		case stored.Version > session.Version:
			return &validation.SessionError{
				Op:              "SaveSession",
				Err:             validation.ErrStaleSession,
				ExpectedVersion: stored.Version,
				ActualVersion:   session.Version,
			}
		}

		history := session.EditHistory
		session.EditHistory = nil
		if err := tx.Save(&session).Error; err != nil {
			return fmt.Errorf("datastore: saving session head: %w", err)
		}

		// The edit log is append-only; replace wholesale rather than
		// diffing against what is stored.
		if err := tx.Where("session_id = ?", session.ID).Delete(&models.EditAction{}).Error; err != nil {
			return fmt.Errorf("datastore: clearing edit log: %w", err)
		}
		if len(history) > 0 {
			if err := tx.Create(&history).Error; err != nil {
				return fmt.Errorf("datastore: saving edit log: %w", err)
			}
		}

		if err := replaceExtraction(tx, session.DrawingID, snap.Symbols, snap.Texts, snap.Lines); err != nil {
			return err
		}

		ds.log.Debug().
			Str("session_id", session.ID).
			Int64("version", session.Version).
			Int("actions", len(history)).
			Msg("Session snapshot persisted")
		return nil
	})
}

// LoadSession reads a session snapshot back. A drawing without a
// persisted session reports validation.ErrSessionNotFound; a session
// whose edit log cannot be decoded fails with ErrCorruptHistory and is
// unusable until repaired.
func (ds *DataStore) LoadSession(ctx context.Context, drawingID string) (*validation.Snapshot, error) {
	var session models.ValidationSession
	err := ds.DB.WithContext(ctx).Where("drawing_id = ?", drawingID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, validation.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: loading session: %w", err)
	}

	var history []models.EditAction
	if err := ds.DB.WithContext(ctx).Where("session_id = ?", session.ID).Order("seq").Find(&history).Error; err != nil {
		return nil, fmt.Errorf("datastore: loading edit log: %w", err)
	}
	for i := range history {
		if history[i].Seq != i {
			return nil, &validation.SessionError{
				Op:      "LoadSession",
				Err:     validation.ErrCorruptHistory,
				Details: fmt.Sprintf("edit log gap at seq %d", i),
			}
		}
	}
	session.EditHistory = history

	symbols, texts, lines, err := ds.LoadExtraction(ctx, drawingID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return &validation.Snapshot{
		Session: session,
		Symbols: symbols,
		Texts:   texts,
		Lines:   lines,
	}, nil
}

// SaveExtraction stores the reconciliation output for a drawing,
// replacing whatever was there.
func (ds *DataStore) SaveExtraction(ctx context.Context, drawingID string, symbols []models.DetectedSymbol, texts []models.ExtractedText, lines []models.LineEntity) error {
	return ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceExtraction(tx, drawingID, symbols, texts, lines)
	})
}

// LoadExtraction reads a drawing's entities.
func (ds *DataStore) LoadExtraction(ctx context.Context, drawingID string) ([]models.DetectedSymbol, []models.ExtractedText, []models.LineEntity, error) {
	db := ds.DB.WithContext(ctx)

	var symbols []models.DetectedSymbol
	if err := db.Where("drawing_id = ?", drawingID).Find(&symbols).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("datastore: loading symbols: %w", err)
	}
	var texts []models.ExtractedText
	if err := db.Where("drawing_id = ?", drawingID).Find(&texts).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("datastore: loading texts: %w", err)
	}
	var lines []models.LineEntity
	if err := db.Where("drawing_id = ?", drawingID).Find(&lines).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("datastore: loading lines: %w", err)
	}
	if len(symbols) == 0 && len(texts) == 0 && len(lines) == 0 {
		return nil, nil, nil, ErrNotFound
	}
	return symbols, texts, lines, nil
}

// DeleteExtraction removes a drawing's entities. Used as the
// compensating cleanup when a reconciliation pass is cancelled.
func (ds *DataStore) DeleteExtraction(ctx context.Context, drawingID string) error {
	return ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("drawing_id = ?", drawingID).Delete(&models.DetectedSymbol{}).Error; err != nil {
			return err
		}
		if err := tx.Where("drawing_id = ?", drawingID).Delete(&models.ExtractedText{}).Error; err != nil {
			return err
		}
		return tx.Where("drawing_id = ?", drawingID).Delete(&models.LineEntity{}).Error
	})
}

func replaceExtraction(tx *gorm.DB, drawingID string, symbols []models.DetectedSymbol, texts []models.ExtractedText, lines []models.LineEntity) error {
	if err := tx.Where("drawing_id = ?", drawingID).Delete(&models.DetectedSymbol{}).Error; err != nil {
		return fmt.Errorf("datastore: clearing symbols: %w", err)
	}
	if err := tx.Where("drawing_id = ?", drawingID).Delete(&models.ExtractedText{}).Error; err != nil {
		return fmt.Errorf("datastore: clearing texts: %w", err)
	}
	if err := tx.Where("drawing_id = ?", drawingID).Delete(&models.LineEntity{}).Error; err != nil {
		return fmt.Errorf("datastore: clearing lines: %w", err)
	}
	if len(symbols) > 0 {
		if err := tx.Create(&symbols).Error; err != nil {
			return fmt.Errorf("datastore: saving symbols: %w", err)
		}
	}
	if len(texts) > 0 {
		if err := tx.Create(&texts).Error; err != nil {
			return fmt.Errorf("datastore: saving texts: %w", err)
		}
	}
	if len(lines) > 0 {
		if err := tx.Create(&lines).Error; err != nil {
			return fmt.Errorf("datastore: saving lines: %w", err)
		}
	}
	return nil
}

var (
	_ Interface        = (*SQLiteStore)(nil)
	_ validation.Saver = (*SQLiteStore)(nil)
)

func newLogger() zerolog.Logger {
	return logger.WithComponent("datastore")
}
