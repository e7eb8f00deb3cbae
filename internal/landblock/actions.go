package landblock

import (
	"context"
	"sync"

	"github.com/annel0/landblock/internal/world/entity"
	"go.uber.org/zap"
)

// Action — отложенная команда для ландблока. Набор команд закрыт:
// новые виды добавляются только в этом пакете.
type Action interface {
	Kind() string
	apply(ctx context.Context, l *Landblock)
}

// AddObject добавляет объект в ландблок
type AddObject struct {
	Object entity.WorldObject
}

// RemoveObject отсоединяет объект без уничтожения
type RemoveObject struct {
	Guid entity.ObjectGuid
}

// DestroyObject уничтожает объект вместе со всем, что от него зависит
type DestroyObject struct {
	Guid entity.ObjectGuid
}

// ReturnItem возвращает предмет в контейнер (например, после сорвавшегося обмена).
// Если контейнера нет, предмет кладётся в мир по Fallback.
type ReturnItem struct {
	Item      entity.WorldObject
	Container entity.ObjectGuid
	Fallback  *entity.Object
}

// BroadcastAction рассылает сообщение игрокам
type BroadcastAction struct {
	Broadcast Broadcast
}

// Activate отмечает ландблок активным
type Activate struct {
	IsAdjacent bool
}

func (AddObject) Kind() string       { return "add_object" }
func (RemoveObject) Kind() string    { return "remove_object" }
func (DestroyObject) Kind() string   { return "destroy_object" }
func (ReturnItem) Kind() string      { return "return_item" }
func (BroadcastAction) Kind() string { return "broadcast" }
func (Activate) Kind() string        { return "activate" }

func (a AddObject) apply(ctx context.Context, l *Landblock) {
	l.addWorldObject(a.Object)
}

func (a RemoveObject) apply(ctx context.Context, l *Landblock) {
	l.removeWorldObject(a.Guid)
}

func (a DestroyObject) apply(ctx context.Context, l *Landblock) {
	l.destroy(ctx, a.Guid)
}

func (a ReturnItem) apply(ctx context.Context, l *Landblock) {
	if c, ok := l.GetObject(a.Container, true).(entity.Container); ok {
		c.AddItem(a.Item)
		return
	}

	base := a.Item.Base()
	if a.Fallback != nil && a.Fallback.Location != nil {
		base.ContainerGuid = 0
		base.SetLocation(*a.Fallback.Location)
		if l.addWorldObject(a.Item) {
			return
		}
	}
	l.log.Zap().Warn("return item: контейнер не найден, предмет потерян",
		zap.Stringer("landblock", l.id),
		zap.Stringer("item", base.Guid()),
		zap.Stringer("container", a.Container),
	)
}

func (a BroadcastAction) apply(ctx context.Context, l *Landblock) {
	l.EnqueueBroadcast(a.Broadcast)
}

func (a Activate) apply(ctx context.Context, l *Landblock) {
	l.SetActive(a.IsAdjacent)
}

// ActionQueue — потокобезопасная FIFO-очередь команд.
// Ставить можно из любой горутины, разбирается только в фазе 2.
type ActionQueue struct {
	mu    sync.Mutex
	items []Action
}

// Enqueue добавляет команду в хвост
func (q *ActionQueue) Enqueue(a Action) {
	q.mu.Lock()
	q.items = append(q.items, a)
	q.mu.Unlock()
}

// Drain забирает все накопленные команды. Команды, поставленные во время
// выполнения забранных, попадут в следующий Drain.
func (q *ActionQueue) Drain() []Action {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// Clear выбрасывает очередь и возвращает число выброшенных команд
func (q *ActionQueue) Clear() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.mu.Unlock()
	return n
}

func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
