package videos

import (
	stderrors "errors"
	"fmt"

	"github.com/mediakit-go/mediakit/pkg/db/models"
	"github.com/mediakit-go/mediakit/pkg/errors"
	"gorm.io/gorm"
)

func ownerScope(q *gorm.DB, model, objectID string) *gorm.DB {
	return q.Where("model = ? AND object_id = ?", model, objectID)
}

func partitionScope(q *gorm.DB, model, objectID string, typ, lang *string) *gorm.DB {
	q = ownerScope(q, model, objectID)
	if typ == nil {
		q = q.Where("type IS NULL")
	} else {
		q = q.Where("type = ?", *typ)
	}
	if lang == nil {
		q = q.Where("language IS NULL")
	} else {
		q = q.Where("language = ?", *lang)
	}
	return q
}

func filenameExists(tx *gorm.DB, model, objectID, filename string) (bool, error) {
	var count int64
	err := ownerScope(tx.Model(&models.Video{}), model, objectID).
		Where("filename = ?", filename).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("counting filenames: %w", err)
	}
	return count > 0, nil
}

func maxPosition(tx *gorm.DB, model, objectID string) (int, error) {
	var max *int
	err := ownerScope(tx.Model(&models.Video{}), model, objectID).
		Select("MAX(position)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("querying max position: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// partitionMain returns the partition's main asset or nil.
func partitionMain(tx *gorm.DB, model, objectID string, typ, lang *string) (*models.Video, error) {
	var row models.Video
	err := partitionScope(tx, model, objectID, typ, lang).
		Where("main = ?", true).
		First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying partition main: %w", err)
	}
	return &row, nil
}

// partitionFirst returns the partition's asset with the lowest position,
// excluding excludeID, or nil when the partition is empty.
func partitionFirst(tx *gorm.DB, model, objectID string, typ, lang *string, excludeID uint) (*models.Video, error) {
	var row models.Video
	q := partitionScope(tx, model, objectID, typ, lang)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	err := q.Order("position ASC").First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying partition head: %w", err)
	}
	return &row, nil
}

func listByOwner(tx *gorm.DB, model, objectID string) ([]models.Video, error) {
	var rows []models.Video
	err := ownerScope(tx, model, objectID).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}
	return rows, nil
}

func findByID(tx *gorm.DB, model, objectID string, id uint) (*models.Video, error) {
	var row models.Video
	err := ownerScope(tx, model, objectID).Where("id = ?", id).First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("video %d not found", id))
		}
		return nil, fmt.Errorf("finding video %d: %w", id, err)
	}
	return &row, nil
}

func findByFilename(tx *gorm.DB, model, objectID, filename string) (*models.Video, error) {
	var row models.Video
	err := ownerScope(tx, model, objectID).Where("filename = ?", filename).First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("video %q not found", filename))
		}
		return nil, fmt.Errorf("finding video %q: %w", filename, err)
	}
	return &row, nil
}

// ownerPartitions lists the distinct (type, language) pairs present for one
// owner.
func ownerPartitions(tx *gorm.DB, model, objectID string) ([]partitionKey, error) {
	var rows []models.Video
	err := ownerScope(tx.Model(&models.Video{}), model, objectID).
		Distinct("type", "language").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing partitions: %w", err)
	}
	keys := make([]partitionKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, partitionKey{typ: row.Type, lang: row.Language})
	}
	return keys, nil
}

type partitionKey struct {
	typ  *string
	lang *string
}
