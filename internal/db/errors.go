package db

import (
	"fmt"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, model.ErrNotFound)
}
