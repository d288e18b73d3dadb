package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platewise/platewise-backend/internal/logger"
	"github.com/platewise/platewise-backend/internal/types"
)

type MessageRepo interface {
	// AppendForSession claims the session's next sequence position and
	// inserts the message in one transaction, so concurrent appends for the
	// same session cannot interleave or collide.
	AppendForSession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, role string, content string) (*types.Message, error)
	ListForSession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Message, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	repoLog := baseLog.With("repo", "MessageRepo")
	return &messageRepo{db: db, log: repoLog}
}

func (mr *messageRepo) AppendForSession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, role string, content string) (*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var msg *types.Message
	err := transaction.WithContext(ctx).Transaction(func(inner *gorm.DB) error {
		// The counter bump blocks a concurrent writer for the same session
		// until this transaction commits.
		res := inner.Model(&types.ChatSession{}).
			Where("id = ?", sessionID).
			UpdateColumn("next_seq", gorm.Expr("next_seq + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var session types.ChatSession
		if err := inner.Where("id = ?", sessionID).First(&session).Error; err != nil {
			return err
		}

		msg = &types.Message{
			ID:        uuid.New(),
			SessionID: sessionID,
			Role:      role,
			Content:   content,
			Seq:       session.NextSeq - 1,
			CreatedAt: time.Now().UTC(),
		}
		return inner.Create(msg).Error
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (mr *messageRepo) ListForSession(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}

	var results []*types.Message
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
