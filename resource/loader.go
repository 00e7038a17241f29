// Package resource loads the content definitions (tracks, quests, badges)
// from JSON files and seeds them into the database at startup.
package resource

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/modelquest/server/model"
)

// TrackDef is one track definition from tracks.json.
type TrackDef struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Order       int        `json:"order"`
	RequiredXP  int        `json:"required_xp"`
	Quests      []QuestDef `json:"quests"`
}

// QuestDef is one quest definition, nested under its track.
type QuestDef struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	TaskType    string          `json:"task_type"`
	Order       int             `json:"order"`
	XPReward    int             `json:"xp_reward"`
	DatasetName string          `json:"dataset_name"`
	MetricName  string          `json:"metric_name"`
	Threshold   float64         `json:"threshold"`
	Config      json.RawMessage `json:"config"`
}

// BadgeDef is one badge definition from badges.json.
type BadgeDef struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Icon           string `json:"icon"`
	ConditionType  string `json:"condition_type"`
	ConditionValue int64  `json:"condition_value"`
}

// SeedData is the full parsed content set.
type SeedData struct {
	Tracks []TrackDef
	Badges []BadgeDef
}

// Load reads tracks.json and badges.json from dataPath. Missing files are
// not an error: an operator may seed only part of the content.
func Load(dataPath string) (*SeedData, error) {
	sd := &SeedData{}

	if err := loadJSON(filepath.Join(dataPath, "tracks.json"), &sd.Tracks); err != nil {
		return nil, err
	}
	if err := loadJSON(filepath.Join(dataPath, "badges.json"), &sd.Badges); err != nil {
		return nil, err
	}

	if err := sd.validate(); err != nil {
		return nil, err
	}
	return sd, nil
}

func loadJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (sd *SeedData) validate() error {
	orders := map[int]string{}
	for _, tr := range sd.Tracks {
		if tr.Name == "" {
			return fmt.Errorf("track with order %d has no name", tr.Order)
		}
		if prev, dup := orders[tr.Order]; dup {
			return fmt.Errorf("tracks %q and %q share order %d", prev, tr.Name, tr.Order)
		}
		orders[tr.Order] = tr.Name
		for _, q := range tr.Quests {
			if q.Title == "" {
				return fmt.Errorf("track %q has a quest with no title", tr.Name)
			}
			if q.DatasetName == "" || q.MetricName == "" {
				return fmt.Errorf("quest %q lacks dataset or metric", q.Title)
			}
		}
	}
	for _, b := range sd.Badges {
		if b.Name == "" || b.ConditionType == "" {
			return fmt.Errorf("badge definition %+v incomplete", b)
		}
	}
	return nil
}

// Apply upserts the definitions into the DB. Existing rows are matched by
// natural key (track order, quest title within track, badge name) and left
// alone, so Apply is safe to run on every startup.
func (sd *SeedData) Apply(db *gorm.DB, logger *zap.Logger) error {
	var created int
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, tr := range sd.Tracks {
			var track model.Track
			res := tx.Where("`order` = ?", tr.Order).Limit(1).Find(&track)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				track = model.Track{
					Name:        tr.Name,
					Description: tr.Description,
					Order:       tr.Order,
					RequiredXP:  tr.RequiredXP,
				}
				if err := tx.Create(&track).Error; err != nil {
					return fmt.Errorf("create track %q: %w", tr.Name, err)
				}
				created++
			}
			for _, q := range tr.Quests {
				var n int64
				if err := tx.Model(&model.Quest{}).
					Where("track_id = ? AND title = ?", track.ID, q.Title).
					Count(&n).Error; err != nil {
					return err
				}
				if n > 0 {
					continue
				}
				quest := model.Quest{
					TrackID:     track.ID,
					Title:       q.Title,
					Description: q.Description,
					TaskType:    q.TaskType,
					Order:       q.Order,
					XPReward:    q.XPReward,
					DatasetName: q.DatasetName,
					MetricName:  q.MetricName,
					Threshold:   q.Threshold,
					Config:      datatypes.JSON(q.Config),
				}
				if err := tx.Create(&quest).Error; err != nil {
					return fmt.Errorf("create quest %q: %w", q.Title, err)
				}
				created++
			}
		}
		for _, b := range sd.Badges {
			var n int64
			if err := tx.Model(&model.Badge{}).Where("name = ?", b.Name).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			badge := model.Badge{
				Name:           b.Name,
				Description:    b.Description,
				Icon:           b.Icon,
				ConditionType:  b.ConditionType,
				ConditionValue: b.ConditionValue,
			}
			if err := tx.Create(&badge).Error; err != nil {
				return fmt.Errorf("create badge %q: %w", b.Name, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("seed data applied", zap.Int("created", created))
	return nil
}
