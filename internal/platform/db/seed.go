package db

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"evalhub/internal/domain/auth"
	"evalhub/internal/platform/config"
	"evalhub/internal/platform/querier"
)

//go:embed default_seed.toml
var defaultSeed []byte

type SeedFile struct {
	Manager     SeedPerson     `toml:"manager"`
	Supervisors []SeedPerson   `toml:"supervisors"`
	Employees   []SeedEmployee `toml:"employees"`
	Questions   []SeedQuestion `toml:"questions"`
}

type SeedPerson struct {
	Name     string `toml:"name"`
	Email    string `toml:"email"`
	Password string `toml:"password"`
}

type SeedEmployee struct {
	Code            string `toml:"code"`
	Name            string `toml:"name"`
	SupervisorEmail string `toml:"supervisor_email"`
}

type SeedQuestion struct {
	Text    string       `toml:"text"`
	Order   int          `toml:"order"`
	Answers []SeedAnswer `toml:"answers"`
}

type SeedAnswer struct {
	Text  string `toml:"text"`
	Score *int   `toml:"score"`
}

// LoadSeedFile reads path, or the embedded default when path is empty.
func LoadSeedFile(path string) (SeedFile, error) {
	raw := defaultSeed
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return SeedFile{}, fmt.Errorf("read seed file: %w", err)
		}
		raw = data
	}
	var seed SeedFile
	if err := toml.Unmarshal(raw, &seed); err != nil {
		return SeedFile{}, fmt.Errorf("parse seed file: %w", err)
	}
	return seed, nil
}

// Seed makes sure the manager account, the listed supervisors and employees,
// and the question bank exist. Existing rows are left alone.
func Seed(ctx context.Context, db querier.DB, cfg config.Config, now time.Time) error {
	seed, err := LoadSeedFile(cfg.SeedFile)
	if err != nil {
		return err
	}

	manager := seed.Manager
	if cfg.SeedManagerName != "" {
		manager.Name = cfg.SeedManagerName
	}
	if cfg.SeedManagerEmail != "" {
		manager.Email = cfg.SeedManagerEmail
	}
	if cfg.SeedManagerPassword != "" {
		manager.Password = cfg.SeedManagerPassword
	}
	if manager.Password == "" {
		manager.Password = cfg.DefaultSupervisorPassword
	}
	managerID, err := ensureSupervisor(ctx, db, manager, auth.RoleManager, "", now)
	if err != nil {
		return fmt.Errorf("seed manager: %w", err)
	}

	emailToID := map[string]string{strings.ToLower(manager.Email): managerID}
	for _, sup := range seed.Supervisors {
		if sup.Password == "" {
			sup.Password = cfg.DefaultSupervisorPassword
		}
		id, err := ensureSupervisor(ctx, db, sup, auth.RoleSupervisor, managerID, now)
		if err != nil {
			return fmt.Errorf("seed supervisor %s: %w", sup.Email, err)
		}
		emailToID[strings.ToLower(sup.Email)] = id
	}

	for _, emp := range seed.Employees {
		supervisorID, ok := emailToID[strings.ToLower(emp.SupervisorEmail)]
		if !ok {
			return fmt.Errorf("seed employee %s: unknown supervisor %s", emp.Code, emp.SupervisorEmail)
		}
		if err := ensureEmployee(ctx, db, emp, supervisorID, now); err != nil {
			return fmt.Errorf("seed employee %s: %w", emp.Code, err)
		}
	}

	return ensureQuestions(ctx, db, seed.Questions, now)
}

func ensureSupervisor(ctx context.Context, db querier.DB, person SeedPerson, role, managerID string, now time.Time) (string, error) {
	email := strings.ToLower(strings.TrimSpace(person.Email))
	if email == "" {
		return "", nil
	}

	var id string
	err := db.QueryRow(ctx, "SELECT id FROM supervisors WHERE email = $1", email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !querier.IsNoRows(err) {
		return "", err
	}

	hash, err := auth.HashPassword(person.Password)
	if err != nil {
		return "", err
	}
	id = uuid.NewString()
	var manager any
	if managerID != "" {
		manager = managerID
	}
	_, err = db.Exec(ctx, `
    INSERT INTO supervisors (id, name, email, password_hash, role, manager_id, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
  `, id, person.Name, email, hash, role, manager, now)
	if err != nil {
		return "", err
	}
	return id, nil
}

func ensureEmployee(ctx context.Context, db querier.DB, emp SeedEmployee, supervisorID string, now time.Time) error {
	_, err := db.Exec(ctx, `
    INSERT INTO employees (id, code, name, supervisor_id, created_at)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (code) DO NOTHING
  `, uuid.NewString(), strings.TrimSpace(emp.Code), strings.TrimSpace(emp.Name), supervisorID, now)
	return err
}

func ensureQuestions(ctx context.Context, db querier.DB, questions []SeedQuestion, now time.Time) error {
	var count int64
	if err := db.QueryRow(ctx, "SELECT COUNT(*) FROM evaluation_questions").Scan(&count); err != nil {
		return err
	}
	if count > 0 || len(questions) == 0 {
		return nil
	}

	return db.InTx(ctx, querier.TxOptions{}, func(q querier.Querier) error {
		for _, question := range questions {
			questionID := uuid.NewString()
			if _, err := q.Exec(ctx, `
        INSERT INTO evaluation_questions (id, question_text, is_active, order_index, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
      `, questionID, question.Text, true, question.Order, now, now); err != nil {
				return err
			}
			for i, answer := range question.Answers {
				if _, err := q.Exec(ctx, `
          INSERT INTO question_answers (id, question_id, answer_text, score, order_index)
          VALUES ($1, $2, $3, $4, $5)
        `, uuid.NewString(), questionID, answer.Text, answer.Score, i+1); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
