package handlers

const (
	msgUnauthorized = "🚫 Access denied. Please contact the administrator."
	msgGeneralError = "❌ An error occurred. Please try again later."
	msgSearchUsage  = "ℹ️ Usage: /search <terms>. Use -term to exclude and OR between alternatives."
	msgNamesUsage   = "ℹ️ Usage: /names <name prefix>"
	msgInvalidQuery = "⚠️ That query has nothing to search for."
	msgNoResults    = "🔍 No messages found."
	msgNoNames      = "🔍 No matching senders."
	msgNoGroups     = "📭 No groups mirrored yet."
	msgSyncStarted  = "🔄 Sync started."
	msgSyncFinished = "✅ Sync finished."
	msgSyncFailed   = "❌ Sync finished with errors. Check the logs."
	msgHelp         = `Chat history search

/search <terms> - search messages, newest first
/names <prefix> - find senders by name
/groups - list mirrored groups
/sync - run a sync pass now (admin only)
/help - show this message

Inside a mirrored group, /search and /names only look at that group.`
)
