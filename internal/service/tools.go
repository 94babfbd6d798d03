package service

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/UnendingLoop/WatermarkStudio/internal/mwlogger"
	"github.com/google/uuid"
)

func parseID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, model.ErrIncorrectID
	}
	return uid, nil
}

// ключи в хранилище: {session}/src/{item}{ext} и {session}/export/{uuid}.zip
func sessionPrefix(sid uuid.UUID) string {
	return sid.String() + "/"
}

func sourceKey(sid, itemID uuid.UUID, name string) string {
	return sessionPrefix(sid) + "src/" + itemID.String() + strings.ToLower(filepath.Ext(name))
}

func archiveKey(sid uuid.UUID) string {
	return sessionPrefix(sid) + "export/" + uuid.New().String() + ".zip"
}

// detectType - заявленный тип без параметров; незнакомый или пустой тип уточняем по расширению
func detectType(name, contentType string) (string, model.Kind) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !model.InVideoTypeMap[ct] && !model.InImageTypeMap[ct] {
		if byExt, ok := model.GetCTypeByExt[strings.ToLower(filepath.Ext(name))]; ok || ct == "" || ct == "application/octet-stream" {
			ct = byExt
		}
	}

	switch {
	case model.InVideoTypeMap[ct]:
		return ct, model.KindVideo
	case model.InImageTypeMap[ct]:
		return ct, model.KindImage
	default:
		return ct, ""
	}
}

// viewport - запрошенный размер, но не больше настроенного предела
func viewport(requested, limit int) int {
	switch {
	case requested <= 0:
		return limit
	case limit <= 0 || requested < limit:
		return requested
	default:
		return limit
	}
}

func closeFileFlow(ctx context.Context, res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Service failed to close fileflow")
	}
}
