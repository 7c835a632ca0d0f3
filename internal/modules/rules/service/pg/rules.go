package pg

import (
	"context"
	"fmt"

	"trade_core/internal/models"
	"trade_core/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Rules implement db store
type Rules struct {
	tm *db.PgTxManager
}

// New instance
func New(tm *db.PgTxManager) *Rules {
	return &Rules{tm: tm}
}

func (r *Rules) ListActive(ctx context.Context) (defs []models.RuleDefinition, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Rules.ListActive: %w", err)
		}
	}()

	err = r.tm.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id, version, expression, parameters FROM rules WHERE active ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				def    models.RuleDefinition
				params []byte
			)
			if err := rows.Scan(&def.ID, &def.Version, &def.Expression, &params); err != nil {
				return err
			}
			if len(params) > 0 {
				if err := sonic.Unmarshal(params, &def.Parameters); err != nil {
					return err
				}
			}
			defs = append(defs, def)
		}
		return rows.Err()
	})
	return defs, err
}

func (r *Rules) Upsert(ctx context.Context, def models.RuleDefinition) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Rules.Upsert: %w", err)
		}
	}()

	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	var params []byte
	params, err = sonic.Marshal(def.Parameters)
	if err != nil {
		return err
	}

	return r.tm.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO rules (id, version, expression, parameters, active)
             VALUES ($1, $2, $3, $4, true)
             ON CONFLICT (id) DO UPDATE
             SET version = EXCLUDED.version,
                 expression = EXCLUDED.expression,
                 parameters = EXCLUDED.parameters,
                 active = true`,
			def.ID, def.Version, def.Expression, params)
		return err
	})
}

func (r *Rules) Delete(ctx context.Context, id string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("Rules.Delete: %w", err)
		}
	}()

	return r.tm.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE rules SET active = false WHERE id = $1`, id)
		return err
	})
}
