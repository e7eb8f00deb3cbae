package world

import (
	"sort"

	"github.com/annel0/landblock/internal/landblock"
)

// recomputeGroups делит загруженные ландблоки на компоненты связности по соседству.
// Номера групп идут с 1 в порядке наименьшего идентификатора компоненты.
// Вызывается только вне параллельной фазы.
func (m *Manager) recomputeGroups() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.groupsDirty {
		return
	}

	visited := make(map[landblock.ID]bool, len(m.landblocks))
	var groups [][]*landblock.Landblock
	for _, root := range m.sortedLocked() {
		if visited[root.ID()] {
			continue
		}
		visited[root.ID()] = true

		members := []*landblock.Landblock{root}
		queue := []*landblock.Landblock{root}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, n := range cur.Adjacents() {
				if visited[n.ID()] {
					continue
				}
				visited[n.ID()] = true
				members = append(members, n)
				queue = append(queue, n)
			}
		}
		sort.Slice(members, func(i, j int) bool { return members[i].ID() < members[j].ID() })

		gid := landblock.GroupID(len(groups) + 1)
		for _, l := range members {
			l.SetGroup(gid)
		}
		groups = append(groups, members)
	}

	m.groups = groups
	m.groupsDirty = false
	m.metrics.groups.Set(float64(len(groups)))
}

// Groups возвращает текущее разбиение на группы
func (m *Manager) Groups() [][]*landblock.Landblock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]*landblock.Landblock, len(m.groups))
	for i, g := range m.groups {
		out[i] = append([]*landblock.Landblock(nil), g...)
	}
	return out
}
