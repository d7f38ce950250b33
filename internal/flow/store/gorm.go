package store

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/wbt-web-support/chatbot-flow/internal/model"
	"github.com/wbt-web-support/chatbot-flow/pkg/errors"
)

// datastore implements Factory over a gorm handle. It works against
// postgres in production and sqlite in tests.
type datastore struct {
	db *gorm.DB
}

// NewFactory wraps a gorm handle in a store Factory.
func NewFactory(db *gorm.DB) Factory {
	return &datastore{db: db}
}

// Migrate creates or updates the service's tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Instruction{},
		&model.Chatbot{},
		&model.FlowNode{},
		&model.ChatSession{},
		&model.DataRecord{},
	)
}

func (ds *datastore) Instructions() InstructionStore { return &instructionStore{db: ds.db} }
func (ds *datastore) Chatbots() ChatbotStore         { return &chatbotStore{db: ds.db} }
func (ds *datastore) Nodes() NodeStore               { return &nodeStore{db: ds.db} }
func (ds *datastore) Sessions() SessionStore         { return &sessionStore{db: ds.db} }
func (ds *datastore) Data() DataStore                { return &dataStore{db: ds.db} }

func (ds *datastore) DB() *gorm.DB { return ds.db }

func (ds *datastore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// wrapDBErr converts a gorm error, mapping record-not-found to the
// resource's errno and everything else to ErrDatabase.
func wrapDBErr(err error, notFound *errors.Errno) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return errors.ErrDatabase.WithCause(err)
}

type instructionStore struct {
	db *gorm.DB
}

func (s *instructionStore) Create(ctx context.Context, instruction *model.Instruction) error {
	return wrapDBErr(s.db.WithContext(ctx).Create(instruction).Error, errors.ErrInstructionNotFound)
}

func (s *instructionStore) Update(ctx context.Context, instruction *model.Instruction) error {
	return wrapDBErr(s.db.WithContext(ctx).Save(instruction).Error, errors.ErrInstructionNotFound)
}

func (s *instructionStore) Get(ctx context.Context, id string) (*model.Instruction, error) {
	var instruction model.Instruction
	err := s.db.WithContext(ctx).First(&instruction, "id = ?", id).Error
	if err != nil {
		return nil, wrapDBErr(err, errors.ErrInstructionNotFound)
	}
	return &instruction, nil
}

func (s *instructionStore) GetByIDs(ctx context.Context, ids []string) ([]*model.Instruction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var instructions []*model.Instruction
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&instructions).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return instructions, nil
}

func (s *instructionStore) List(ctx context.Context, opts ListOptions) ([]*model.Instruction, int64, error) {
	var total int64
	query := s.db.WithContext(ctx).Model(&model.Instruction{}).Where("is_active = ?", true)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.ErrDatabase.WithCause(err)
	}

	var instructions []*model.Instruction
	err := query.Order("created_at DESC").
		Offset(opts.Offset()).Limit(opts.Limit()).
		Find(&instructions).Error
	if err != nil {
		return nil, 0, errors.ErrDatabase.WithCause(err)
	}
	return instructions, total, nil
}

func (s *instructionStore) ListRetrievable(ctx context.Context) ([]*model.Instruction, error) {
	var instructions []*model.Instruction
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND embedding IS NOT NULL", true).
		Order("id ASC").
		Find(&instructions).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return instructions, nil
}

func (s *instructionStore) ListMissingEmbedding(ctx context.Context) ([]*model.Instruction, error) {
	var instructions []*model.Instruction
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND embedding IS NULL", true).
		Order("id ASC").
		Find(&instructions).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return instructions, nil
}

func (s *instructionStore) SoftDelete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&model.Instruction{}).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return errors.ErrDatabase.WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrInstructionNotFound
	}
	return nil
}

type chatbotStore struct {
	db *gorm.DB
}

func (s *chatbotStore) Create(ctx context.Context, chatbot *model.Chatbot) error {
	return wrapDBErr(s.db.WithContext(ctx).Create(chatbot).Error, errors.ErrChatbotNotFound)
}

func (s *chatbotStore) Update(ctx context.Context, chatbot *model.Chatbot) error {
	return wrapDBErr(s.db.WithContext(ctx).Save(chatbot).Error, errors.ErrChatbotNotFound)
}

func (s *chatbotStore) Get(ctx context.Context, id string) (*model.Chatbot, error) {
	var chatbot model.Chatbot
	err := s.db.WithContext(ctx).First(&chatbot, "id = ?", id).Error
	if err != nil {
		return nil, wrapDBErr(err, errors.ErrChatbotNotFound)
	}
	return &chatbot, nil
}

func (s *chatbotStore) List(ctx context.Context, opts ListOptions) ([]*model.Chatbot, int64, error) {
	var total int64
	query := s.db.WithContext(ctx).Model(&model.Chatbot{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.ErrDatabase.WithCause(err)
	}

	var chatbots []*model.Chatbot
	err := query.Order("created_at DESC").
		Offset(opts.Offset()).Limit(opts.Limit()).
		Find(&chatbots).Error
	if err != nil {
		return nil, 0, errors.ErrDatabase.WithCause(err)
	}
	return chatbots, total, nil
}

type nodeStore struct {
	db *gorm.DB
}

func (s *nodeStore) ListByChatbot(ctx context.Context, chatbotID string) ([]*model.FlowNode, error) {
	var nodes []*model.FlowNode
	err := s.db.WithContext(ctx).
		Where("chatbot_id = ?", chatbotID).
		Order("order_index ASC, id ASC").
		Find(&nodes).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return nodes, nil
}

func (s *nodeStore) ReplaceForChatbot(ctx context.Context, chatbotID string, nodes []*model.FlowNode) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chatbot_id = ?", chatbotID).Delete(&model.FlowNode{}).Error; err != nil {
			return err
		}
		for _, node := range nodes {
			node.ChatbotID = chatbotID
			if err := tx.Create(node).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	return nil
}

type sessionStore struct {
	db *gorm.DB
}

func (s *sessionStore) Create(ctx context.Context, session *model.ChatSession) error {
	return wrapDBErr(s.db.WithContext(ctx).Create(session).Error, errors.ErrSessionNotFound)
}

func (s *sessionStore) Get(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		return nil, wrapDBErr(err, errors.ErrSessionNotFound)
	}
	return &session, nil
}

func (s *sessionStore) Update(ctx context.Context, session *model.ChatSession) error {
	return wrapDBErr(s.db.WithContext(ctx).Save(session).Error, errors.ErrSessionNotFound)
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&model.ChatSession{}, "id = ?", id)
	if result.Error != nil {
		return errors.ErrDatabase.WithCause(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrSessionNotFound
	}
	return nil
}

func (s *sessionStore) ListByChatbotAndUser(ctx context.Context, chatbotID, userID string) ([]*model.ChatSession, error) {
	var sessions []*model.ChatSession
	err := s.db.WithContext(ctx).
		Where("chatbot_id = ? AND user_id = ?", chatbotID, userID).
		Order("updated_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return sessions, nil
}

type dataStore struct {
	db *gorm.DB
}

func (s *dataStore) Create(ctx context.Context, record *model.DataRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.ErrDatabase.WithCause(err)
	}
	return nil
}

func (s *dataStore) Fetch(ctx context.Context, source string, filter DataFilter) ([]*model.DataRecord, error) {
	query := s.db.WithContext(ctx).Where("source = ?", source)
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.TeamID != "" {
		query = query.Where("team_id = ?", filter.TeamID)
	}
	if !filter.IncludeArchived {
		query = query.Where("archived = ?", false)
	}

	var records []*model.DataRecord
	err := query.Order("created_at DESC, id DESC").Find(&records).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return records, nil
}

func (s *dataStore) Count(ctx context.Context, source string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&model.DataRecord{}).
		Where("source = ?", source).
		Count(&total).Error
	if err != nil {
		return 0, errors.ErrDatabase.WithCause(err)
	}
	return total, nil
}
