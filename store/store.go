// Package store is the persisted state used by the lifecycle controller and the webhook router.
// Every mutation is a point upsert or a conditional update keyed by a unique column set.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wabot/models"
	"wabot/tools"

	"github.com/jinzhu/gorm"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db *gorm.DB
}

func New(database *gorm.DB) *Store {
	return &Store{db: database}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if gorm.IsRecordNotFoundError(err) {
		return ErrNotFound
	}
	return err
}

/************************************************
/**** MARK: BOTS ****/
/************************************************/

func (s *Store) FindBot(id string) (*models.BotConfiguration, error) {
	var bot models.BotConfiguration
	if err := s.db.Where("id = ?", id).First(&bot).Error; err != nil {
		return nil, notFound(err)
	}
	return &bot, nil
}

// FindActiveBotByNumber returns the active bot that owns a WhatsApp number.
// A formatted number ("+55 (11) 99999-0000") falls back to its digits.
func (s *Store) FindActiveBotByNumber(number string) (*models.BotConfiguration, error) {
	number = strings.TrimSpace(number)
	bot, err := s.findActiveBot(number)
	if errors.Is(err, ErrNotFound) {
		if digits := tools.DigitsOnly(number); digits != "" && digits != number {
			return s.findActiveBot(digits)
		}
	}
	return bot, err
}

func (s *Store) findActiveBot(number string) (*models.BotConfiguration, error) {
	var bot models.BotConfiguration
	err := s.db.
		Where("whatsapp_number = ? AND is_active = ?", number, true).
		Order("created_at desc").
		First(&bot).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &bot, nil
}

func (s *Store) CreateBot(bot *models.BotConfiguration) error {
	return s.db.Create(bot).Error
}

/************************************************
/**** MARK: INSTANCES ****/
/************************************************/

func (s *Store) FindInstanceByName(name string) (*models.WhatsAppInstance, error) {
	var inst models.WhatsAppInstance
	if err := s.db.Where("instance_name = ?", name).First(&inst).Error; err != nil {
		return nil, notFound(err)
	}
	return &inst, nil
}

// UpsertInstance makes sure a row exists for name and applies fields to it.
// A nil value in fields writes NULL.
func (s *Store) UpsertInstance(name, botID string, fields map[string]any) (*models.WhatsAppInstance, error) {
	inst, err := s.FindInstanceByName(name)
	if errors.Is(err, ErrNotFound) {
		created := models.WhatsAppInstance{
			InstanceName:       name,
			BotConfigurationID: botID,
			Status:             models.INSTANCE_STATUS_DISCONNECTED,
		}
		if cerr := s.db.Create(&created).Error; cerr != nil {
			// another writer created it first
			inst, err = s.FindInstanceByName(name)
			if err != nil {
				return nil, fmt.Errorf("create instance %s: %w", name, cerr)
			}
		} else {
			inst = &created
		}
	} else if err != nil {
		return nil, err
	}

	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	if botID != "" {
		updates["bot_configuration_id"] = botID
	}
	if err := s.db.Model(&models.WhatsAppInstance{}).Where("id = ?", inst.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update instance %s: %w", name, err)
	}
	return s.FindInstanceByName(name)
}

// UpdateInstance applies fields to an existing row. It returns ErrNotFound when no row matches.
func (s *Store) UpdateInstance(name string, fields map[string]any) error {
	res := s.db.Model(&models.WhatsAppInstance{}).Where("instance_name = ?", name).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearExpiredQRCodes drops QR codes of connecting rows whose expiry is before now.
func (s *Store) ClearExpiredQRCodes(now time.Time) (int64, error) {
	res := s.db.Model(&models.WhatsAppInstance{}).
		Where("status = ? AND qr_code_expires_at IS NOT NULL AND qr_code_expires_at <= ?", models.INSTANCE_STATUS_CONNECTING, now).
		Updates(map[string]any{
			"qr_code":            nil,
			"qr_code_expires_at": nil,
		})
	return res.RowsAffected, res.Error
}

/************************************************
/**** MARK: CONVERSATIONS ****/
/************************************************/

// TouchConversation looks up the (instance, phone) conversation, creating it when absent,
// and records the activity at `at`. A non-nil name replaces the stored one.
func (s *Store) TouchConversation(inst models.WhatsAppInstance, phone string, name *string, at time.Time) (*models.WhatsAppConversation, error) {
	var conv models.WhatsAppConversation
	err := s.db.Where("whatsapp_instance_id = ? AND customer_phone = ?", inst.ID, phone).First(&conv).Error
	if err == nil {
		return s.touch(conv, name, at)
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}

	conv = models.WhatsAppConversation{
		WhatsAppInstanceID: inst.ID,
		BotConfigurationID: inst.BotConfigurationID,
		CustomerPhone:      phone,
		CustomerName:       name,
		LastMessageAt:      &at,
		Status:             models.CONVERSATION_STATUS_ACTIVE,
	}
	if cerr := s.db.Create(&conv).Error; cerr != nil {
		// lost the race on the unique index, fall back to an update
		var existing models.WhatsAppConversation
		if ferr := s.db.Where("whatsapp_instance_id = ? AND customer_phone = ?", inst.ID, phone).First(&existing).Error; ferr != nil {
			return nil, fmt.Errorf("create conversation: %w", cerr)
		}
		return s.touch(existing, name, at)
	}
	return &conv, nil
}

func (s *Store) touch(conv models.WhatsAppConversation, name *string, at time.Time) (*models.WhatsAppConversation, error) {
	updates := map[string]any{"last_message_at": at}
	if name != nil {
		updates["customer_name"] = *name
		conv.CustomerName = name
	}
	if err := s.db.Model(&models.WhatsAppConversation{}).Where("id = ?", conv.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	conv.LastMessageAt = &at
	return &conv, nil
}

func (s *Store) FindConversation(id int64) (*models.WhatsAppConversation, error) {
	var conv models.WhatsAppConversation
	if err := s.db.First(&conv, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

// ListConversations returns the instance's conversations, most recent activity first.
// An empty status lists every status.
func (s *Store) ListConversations(instanceID int64, status string) ([]models.WhatsAppConversation, error) {
	q := s.db.Where("whatsapp_instance_id = ?", instanceID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.WhatsAppConversation
	if err := q.Order("last_message_at desc, id desc").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

/************************************************
/**** MARK: MESSAGES ****/
/************************************************/

// InsertMessageOnce stores msg unless (instance, message_id) is already present.
// It reports whether a new row was written.
func (s *Store) InsertMessageOnce(msg *models.WhatsAppMessage) (bool, error) {
	var count int
	err := s.db.Model(&models.WhatsAppMessage{}).
		Where("whatsapp_instance_id = ? AND message_id = ?", msg.WhatsAppInstanceID, msg.MessageID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	if err := s.db.Create(msg).Error; err != nil {
		// a concurrent delivery won on the unique index
		if s.messageExists(msg.WhatsAppInstanceID, msg.MessageID) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) messageExists(instanceID int64, messageID string) bool {
	var count int
	err := s.db.Model(&models.WhatsAppMessage{}).
		Where("whatsapp_instance_id = ? AND message_id = ?", instanceID, messageID).
		Count(&count).Error
	return err == nil && count > 0
}

// ListMessages returns a conversation's messages in send order.
func (s *Store) ListMessages(conversationID int64) ([]models.WhatsAppMessage, error) {
	var out []models.WhatsAppMessage
	err := s.db.Where("conversation_id = ?", conversationID).Order("sent_at asc, id asc").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
