package landblock

import "github.com/annel0/landblock/internal/world/entity"

// pendingSet — отложенные добавления или удаления в порядке поступления
type pendingSet struct {
	order []entity.ObjectGuid
	objs  map[entity.ObjectGuid]entity.WorldObject
}

func newPendingSet() pendingSet {
	return pendingSet{objs: make(map[entity.ObjectGuid]entity.WorldObject)}
}

func (p *pendingSet) add(obj entity.WorldObject) {
	guid := obj.Base().Guid()
	if _, ok := p.objs[guid]; !ok {
		p.order = append(p.order, guid)
	}
	p.objs[guid] = obj
}

// remove отменяет отложенную операцию; order чистится при drain
func (p *pendingSet) remove(guid entity.ObjectGuid) (entity.WorldObject, bool) {
	obj, ok := p.objs[guid]
	if ok {
		delete(p.objs, guid)
	}
	return obj, ok
}

func (p *pendingSet) get(guid entity.ObjectGuid) (entity.WorldObject, bool) {
	obj, ok := p.objs[guid]
	return obj, ok
}

func (p *pendingSet) len() int { return len(p.objs) }

// drain возвращает объекты в порядке поступления и очищает набор
func (p *pendingSet) drain() []entity.WorldObject {
	if len(p.objs) == 0 {
		p.order = p.order[:0]
		return nil
	}
	out := make([]entity.WorldObject, 0, len(p.objs))
	for _, guid := range p.order {
		if obj, ok := p.objs[guid]; ok {
			out = append(out, obj)
			delete(p.objs, guid)
		}
	}
	p.order = p.order[:0]
	return out
}
