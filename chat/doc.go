// Package chat connects the relay to Telegram through the Bot API.
//
// Bot covers both directions:
//   - Listen: long-polls updates and hands every group message (text or
//     media caption) to a callback as a relay.Message. The callback must not
//     block; the relay's dispatcher only enqueues.
//   - SendVideo, SendDocument, SendText, DeleteMessage: the outbound calls
//     used by delivery, failure reports, notices and source-message cleanup.
//
// Credentials: BOT_TOKEN from @BotFather. The bot needs permission to delete
// messages in groups where DELETE_SOURCE_MESSAGE is on, and privacy mode must
// be disabled so it sees ordinary group messages.
package chat
