package tenant

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fieldpipe/fieldpipe/pkg/config"
	"github.com/fieldpipe/fieldpipe/pkg/errors"
)

// watermarkLayout is the ISO-8601 layout used in the credentials file.
const watermarkLayout = time.RFC3339

// officeEntry is the on-disk shape of one office record.
type officeEntry struct {
	OfficeID          int    `yaml:"office_id"`
	BaseURL           string `yaml:"base_url"`
	AuthKey           string `yaml:"auth_key"`
	AuthToken         string `yaml:"auth_token"`
	LastSuccessfulRun string `yaml:"last_successful_run_utc,omitempty"`
}

type officeFile struct {
	Offices []officeEntry `yaml:"offices"`
}

// FileStore is a YAML-backed tenant store. Reads are wholesale; every
// watermark update rewrites the full file, so writers are serialized by
// an internal mutex to avoid lost updates.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file store for the given credentials file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// LoadAll reads every office from the backing file. ${VAR} references in
// the file are expanded from the environment so secrets can stay out of
// the document on disk.
func (s *FileStore) LoadAll(ctx context.Context) ([]Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(true)
	if err != nil {
		return nil, err
	}

	configs := make([]Config, 0, len(doc.Offices))
	for _, o := range doc.Offices {
		wm := Watermark{OfficeID: o.OfficeID}
		if o.LastSuccessfulRun != "" {
			t, err := time.Parse(watermarkLayout, o.LastSuccessfulRun)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeConfig,
					fmt.Sprintf("invalid last_successful_run_utc for office %d", o.OfficeID))
			}
			wm.LastSuccessfulRun = &t
		}
		configs = append(configs, Config{
			Credentials: Credentials{
				OfficeID:  o.OfficeID,
				BaseURL:   o.BaseURL,
				AuthKey:   o.AuthKey,
				AuthToken: o.AuthToken,
			},
			Watermark: wm,
		})
	}

	return configs, nil
}

// AdvanceWatermark rewrites the backing file with the office's watermark
// moved forward. The raw file content is used for the rewrite (no env
// expansion) so ${VAR} credential placeholders survive the round trip.
func (s *FileStore) AdvanceWatermark(ctx context.Context, officeID int, to time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(false)
	if err != nil {
		return err
	}

	found := false
	for i := range doc.Offices {
		if doc.Offices[i].OfficeID != officeID {
			continue
		}
		found = true
		if cur := doc.Offices[i].LastSuccessfulRun; cur != "" {
			t, err := time.Parse(watermarkLayout, cur)
			if err == nil && !t.Before(to) {
				// Never roll a watermark back.
				return nil
			}
		}
		doc.Offices[i].LastSuccessfulRun = to.UTC().Format(watermarkLayout)
		break
	}
	if !found {
		return errors.New(errors.ErrorTypeNotFound,
			fmt.Sprintf("office %d not present in tenant config", officeID))
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal tenant config")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to rewrite tenant config")
	}

	return nil
}

func (s *FileStore) read(expandEnv bool) (*officeFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("tenant config not found: %s", s.path))
	}

	content := string(data)
	if expandEnv {
		content = config.ExpandEnv(content)
	}

	var doc officeFile
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("tenant config malformed: %s", s.path))
	}

	return &doc, nil
}
