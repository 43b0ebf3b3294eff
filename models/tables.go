package models

// Tables lists every model migrated by db.Migrate.
var Tables = []interface{}{
	&BotConfiguration{},
	&WhatsAppInstance{},
	&WhatsAppConversation{},
	&WhatsAppMessage{},
}
