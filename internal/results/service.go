// Package results reads training outputs and manages uploaded datasets in
// object storage.
package results

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bridgeml/bridge/internal/storage"
	"github.com/bridgeml/bridge/pkg/types"
	"github.com/bridgeml/bridge/pkg/utils"
)

const featureImportancesFile = "feature_importances.txt"

// Service exposes read access to training results and management of the
// user's uploaded datasets
type Service struct {
	objects       storage.ObjectStore
	dataBucket    string
	resultsBucket string
}

// NewService creates a results service
func NewService(objects storage.ObjectStore, dataBucket, resultsBucket string) *Service {
	return &Service{
		objects:       objects,
		dataBucket:    dataBucket,
		resultsBucket: resultsBucket,
	}
}

// Features fetches the feature-importances file produced by training and
// parses its "name: value" lines into a map
func (s *Service) Features(ctx context.Context, userID, label string) (map[string]string, error) {
	key := utils.ObjectKey(userID, label, featureImportancesFile)

	data, err := s.objects.GetObject(ctx, s.resultsBucket, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	features := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), ":", 2)
		if len(parts) == 2 {
			features[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return features, nil
}

// Graphics returns a page of base64-encoded plot images for the label
func (s *Service) Graphics(ctx context.Context, userID, label string, start, count int) ([]string, error) {
	return s.images(ctx, utils.LabelPrefix(userID, label)+"graphics/", start, count)
}

// Stats returns a page of base64-encoded statistics images for the label
func (s *Service) Stats(ctx context.Context, userID, label string, start, count int) ([]string, error) {
	return s.images(ctx, utils.LabelPrefix(userID, label)+"stats/", start, count)
}

func (s *Service) images(ctx context.Context, prefix string, start, count int) ([]string, error) {
	if start < 0 || count <= 0 {
		return nil, fmt.Errorf("%w: invalid page range %d:%d", types.ErrValidation, start, count)
	}

	keys, err := s.objects.ListObjects(ctx, s.resultsBucket, prefix, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	if start >= len(keys) {
		return nil, nil
	}
	end := start + count
	if end > len(keys) {
		end = len(keys)
	}

	var images []string
	for _, key := range keys[start:end] {
		if strings.HasSuffix(key, "/") {
			continue
		}
		data, err := s.objects.GetObject(ctx, s.resultsBucket, key)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to fetch image")
			return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}

	return images, nil
}

// Labels lists the label directories the user has uploaded datasets under
func (s *Service) Labels(ctx context.Context, userID string) ([]string, error) {
	exists, err := s.objects.BucketExists(ctx, s.dataBucket)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	if !exists {
		return nil, nil
	}

	prefix := utils.UserPrefix(userID)
	keys, err := s.objects.ListObjects(ctx, s.dataBucket, prefix, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	var labels []string
	for _, key := range keys {
		label := strings.TrimSuffix(strings.TrimPrefix(key, prefix), "/")
		if label != "" {
			labels = append(labels, label)
		}
	}

	return labels, nil
}

// ListFiles lists every object in the user's label directory
func (s *Service) ListFiles(ctx context.Context, userID, label string) ([]string, error) {
	keys, err := s.objects.ListObjects(ctx, s.dataBucket, utils.LabelPrefix(userID, label), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return keys, nil
}

// RemoveFile deletes one uploaded file
func (s *Service) RemoveFile(ctx context.Context, userID, label, fileName string) error {
	key := utils.ObjectKey(userID, label, fileName)
	if err := s.objects.DeleteObject(ctx, s.dataBucket, key); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return nil
}

// RemoveLabel deletes every object under the user's label directory
func (s *Service) RemoveLabel(ctx context.Context, userID, label string) error {
	prefix := utils.LabelPrefix(userID, label)

	keys, err := s.objects.ListObjects(ctx, s.dataBucket, prefix, true)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	for _, key := range keys {
		if err := s.objects.DeleteObject(ctx, s.dataBucket, key); err != nil {
			return fmt.Errorf("%w: %v", types.ErrStorage, err)
		}
	}

	log.Info().Str("user_id", userID).Str("label", label).Int("objects", len(keys)).Msg("label removed")
	return nil
}
