package shellcontext

// Aliases are process-global: a single table shared by every scope,
// resolved once per simple command before any other expansion pass and
// never recursively (spec data model: "Alias: name -> expansion string").

// SetAlias records or overwrites name's expansion.
func (m *Manager) SetAlias(name, expansion string) {
	if m.aliases == nil {
		m.aliases = map[string]string{}
	}
	m.aliases[name] = expansion
}

// GetAlias reports name's expansion, if any.
func (m *Manager) GetAlias(name string) (string, bool) {
	v, ok := m.aliases[name]
	return v, ok
}

// RemoveAlias deletes name from the table.
func (m *Manager) RemoveAlias(name string) {
	delete(m.aliases, name)
}

// ClearAliases empties the table, used by `unalias -a`.
func (m *Manager) ClearAliases() {
	m.aliases = map[string]string{}
}

// Aliases returns a copy of the name->expansion table, used by `alias -p`.
func (m *Manager) Aliases() map[string]string {
	out := make(map[string]string, len(m.aliases))
	for k, v := range m.aliases {
		out[k] = v
	}
	return out
}
