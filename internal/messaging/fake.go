package messaging

import "context"

// Fake is a scriptable Client implementation for scheduler and critical
// handler unit tests (no live SDK/network involved).
type Fake struct {
	ForwardFunc  func(ctx context.Context, toChatID, fromChatID, messageID int64) (int64, error)
	DeleteFunc   func(ctx context.Context, chatID, messageID int64) error
	PinFunc      func(ctx context.Context, chatID, messageID int64) error
	SendTextFunc func(ctx context.Context, chatID int64, htmlText string) error
	GetChatFunc  func(ctx context.Context, chatID int64) (*Chat, error)

	Calls []string
}

func (f *Fake) GetMe(ctx context.Context) (*Me, error) {
	f.Calls = append(f.Calls, "get_me")
	return &Me{ID: 1, Username: "fakebot", FullName: "Fake Bot"}, nil
}

func (f *Fake) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	f.Calls = append(f.Calls, "get_chat")
	if f.GetChatFunc != nil {
		return f.GetChatFunc(ctx, chatID)
	}
	return &Chat{ID: chatID, Type: "supergroup"}, nil
}

func (f *Fake) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	f.Calls = append(f.Calls, "get_chat_member")
	return &ChatMember{Status: MemberAdministrator}, nil
}

func (f *Fake) Forward(ctx context.Context, toChatID, fromChatID, messageID int64) (int64, error) {
	f.Calls = append(f.Calls, "forward")
	if f.ForwardFunc != nil {
		return f.ForwardFunc(ctx, toChatID, fromChatID, messageID)
	}
	return messageID, nil
}

func (f *Fake) Delete(ctx context.Context, chatID, messageID int64) error {
	f.Calls = append(f.Calls, "delete")
	if f.DeleteFunc != nil {
		return f.DeleteFunc(ctx, chatID, messageID)
	}
	return nil
}

func (f *Fake) Pin(ctx context.Context, chatID, messageID int64) error {
	f.Calls = append(f.Calls, "pin")
	if f.PinFunc != nil {
		return f.PinFunc(ctx, chatID, messageID)
	}
	return nil
}

func (f *Fake) SendText(ctx context.Context, chatID int64, htmlText string) error {
	f.Calls = append(f.Calls, "send_text")
	if f.SendTextFunc != nil {
		return f.SendTextFunc(ctx, chatID, htmlText)
	}
	return nil
}
