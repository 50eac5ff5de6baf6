package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizarena/internal/event"
)

// Notification is the message every client of a lobby receives.
type Notification struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

// Publisher fans room events out over redis pub/sub, one channel per lobby,
// so every server instance holding a client of the lobby can deliver them.
type Publisher struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPublisher(c Config) *Publisher {
	return &Publisher{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

func (p *Publisher) Broadcast(ctx context.Context, lobbyCode string, e event.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("broadcast: marshal %s: %v", e.Name(), err)
	}

	b, err := json.Marshal(Notification{
		Event: e.Name(),
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("broadcast: marshal notification %s: %v", e.Name(), err)
	}

	if err := p.redis.Publish(ctx, p.Channel(lobbyCode), b).Err(); err != nil {
		return fmt.Errorf("broadcast: publish %s: lobby=%s: %w", e.Name(), lobbyCode, err)
	}

	return nil
}

// Subscribe listens to the room of a lobby. The caller must close the subscription.
func (p *Publisher) Subscribe(ctx context.Context, lobbyCode string) (*redis.PubSub, error) {
	sub := p.redis.Subscribe(ctx, p.Channel(lobbyCode))

	// Wait for the confirmation so no event published after return is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("broadcast: subscribe lobby=%s: %w", lobbyCode, err)
	}

	return sub, nil
}

func (p *Publisher) Channel(lobbyCode string) string {
	return fmt.Sprintf("%s:lobby:%s", p.prefix, lobbyCode)
}
