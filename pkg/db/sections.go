package db

import (
	"github.com/zhiayang/ikura/pkg/codec"
	"github.com/zhiayang/ikura/pkg/markov"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
	"github.com/zhiayang/ikura/pkg/registry"
	"github.com/zhiayang/ikura/pkg/value"
)

// backendData is the per-backend section shape: every channel and
// user this module has ever observed for one Backend (spec.md §3).
type backendData struct {
	Channels map[string]*model.Channel
	Users    map[string]*model.User
}

func newBackendData() *backendData {
	return &backendData{Channels: map[string]*model.Channel{}, Users: map[string]*model.User{}}
}

func encodeBackendData(w *codec.Writer, bd *backendData) {
	w.WriteListHeader(len(bd.Channels))
	for _, ch := range bd.Channels {
		w.WriteString(ch.ID)
		w.WriteString(ch.Name)
		w.WriteListHeader(len(ch.CommandPrefixes))
		for _, p := range ch.CommandPrefixes {
			w.WriteString(p)
		}
		w.WriteBool(ch.Lurk)
		w.WriteBool(ch.RespondToPings)
		w.WriteBool(ch.SilentErrors)
		w.WriteBool(ch.RunMessageHandlers)
	}

	w.WriteListHeader(len(bd.Users))
	for _, u := range bd.Users {
		w.WriteString(u.ID)
		w.WriteString(u.DisplayName)
		w.WriteU64(uint64(u.Flags))
		w.WriteListHeader(len(u.Groups))
		for _, g := range u.Groups {
			w.WriteS64(int64(g))
		}
		w.WriteListHeader(len(u.Roles))
		for _, r := range u.Roles {
			w.WriteU64(uint64(r))
		}
	}
}

func decodeBackendData(r *codec.Reader, backend model.Backend) (*backendData, error) {
	bd := newBackendData()

	nch, err := r.ReadListHeader()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nch; i++ {
		ch := &model.Channel{Backend: backend}
		if ch.ID, err = r.ReadString(); err != nil {
			return nil, err
		}
		if ch.Name, err = r.ReadString(); err != nil {
			return nil, err
		}
		np, err := r.ReadListHeader()
		if err != nil {
			return nil, err
		}
		for j := 0; j < np; j++ {
			p, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			ch.CommandPrefixes = append(ch.CommandPrefixes, p)
		}
		if ch.Lurk, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if ch.RespondToPings, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if ch.SilentErrors, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if ch.RunMessageHandlers, err = r.ReadBool(); err != nil {
			return nil, err
		}
		bd.Channels[ch.ID] = ch
	}

	nu, err := r.ReadListHeader()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nu; i++ {
		u := &model.User{Backend: backend}
		if u.ID, err = r.ReadString(); err != nil {
			return nil, err
		}
		if u.DisplayName, err = r.ReadString(); err != nil {
			return nil, err
		}
		flags, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		u.Flags = perm.Flag(flags)
		ng, err := r.ReadListHeader()
		if err != nil {
			return nil, err
		}
		for j := 0; j < ng; j++ {
			g, err := r.ReadS64()
			if err != nil {
				return nil, err
			}
			u.Groups = append(u.Groups, perm.GroupID(g))
		}
		nr, err := r.ReadListHeader()
		if err != nil {
			return nil, err
		}
		for j := 0; j < nr; j++ {
			rid, err := r.ReadU64()
			if err != nil {
				return nil, err
			}
			u.Roles = append(u.Roles, perm.RoleID(rid))
		}
		bd.Users[u.ID] = u
	}

	return bd, nil
}

// encodeSharedData writes the cross-backend group table (spec.md §3's
// invariant-bearing Group/UserRef relationship).
func encodeSharedData(w *codec.Writer, groups map[perm.GroupID]*model.Group) {
	w.WriteListHeader(len(groups))
	for _, g := range groups {
		w.WriteS64(int64(g.ID))
		w.WriteString(g.Name)
		w.WriteListHeader(len(g.Members))
		for _, m := range g.Members {
			w.WriteS64(int64(m.Backend))
			w.WriteString(m.ID)
		}
	}
}

func decodeSharedData(r *codec.Reader) (map[perm.GroupID]*model.Group, error) {
	n, err := r.ReadListHeader()
	if err != nil {
		return nil, err
	}
	out := make(map[perm.GroupID]*model.Group, n)
	for i := 0; i < n; i++ {
		id, err := r.ReadS64()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		nm, err := r.ReadListHeader()
		if err != nil {
			return nil, err
		}
		g := &model.Group{ID: perm.GroupID(id), Name: name}
		for j := 0; j < nm; j++ {
			b, err := r.ReadS64()
			if err != nil {
				return nil, err
			}
			uid, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			g.Members = append(g.Members, model.UserRef{Backend: model.Backend(b), ID: uid})
		}
		out[g.ID] = g
	}
	return out, nil
}

func encodePermSet(w *codec.Writer, p perm.PermissionSet) {
	w.WriteU64(uint64(p.Flags))
	w.WriteListHeader(len(p.GroupWhitelist))
	for g := range p.GroupWhitelist {
		w.WriteS64(int64(g))
	}
	w.WriteListHeader(len(p.GroupBlacklist))
	for g := range p.GroupBlacklist {
		w.WriteS64(int64(g))
	}
	w.WriteListHeader(len(p.RoleWhitelist))
	for rid := range p.RoleWhitelist {
		w.WriteU64(uint64(rid))
	}
	w.WriteListHeader(len(p.RoleBlacklist))
	for rid := range p.RoleBlacklist {
		w.WriteU64(uint64(rid))
	}
}

func decodePermSet(r *codec.Reader) (perm.PermissionSet, error) {
	flags, err := r.ReadU64()
	if err != nil {
		return perm.PermissionSet{}, err
	}
	p := perm.New(perm.Flag(flags))
	n, err := r.ReadListHeader()
	if err != nil {
		return p, err
	}
	for i := 0; i < n; i++ {
		g, err := r.ReadS64()
		if err != nil {
			return p, err
		}
		p.GroupWhitelist[perm.GroupID(g)] = struct{}{}
	}
	if n, err = r.ReadListHeader(); err != nil {
		return p, err
	}
	for i := 0; i < n; i++ {
		g, err := r.ReadS64()
		if err != nil {
			return p, err
		}
		p.GroupBlacklist[perm.GroupID(g)] = struct{}{}
	}
	if n, err = r.ReadListHeader(); err != nil {
		return p, err
	}
	for i := 0; i < n; i++ {
		rid, err := r.ReadU64()
		if err != nil {
			return p, err
		}
		p.RoleWhitelist[perm.RoleID(rid)] = struct{}{}
	}
	if n, err = r.ReadListHeader(); err != nil {
		return p, err
	}
	for i := 0; i < n; i++ {
		rid, err := r.ReadU64()
		if err != nil {
			return p, err
		}
		p.RoleBlacklist[perm.RoleID(rid)] = struct{}{}
	}
	return p, nil
}

// encodeInterpreterState writes a registry.Snapshot (spec.md §4.2's
// interpreter-state section).
func encodeInterpreterState(w *codec.Writer, snap registry.Snapshot) {
	w.WriteListHeader(len(snap.Macros))
	for _, m := range snap.Macros {
		w.WriteString(m.Name)
		w.WriteListHeader(len(m.Words))
		for _, word := range m.Words {
			w.WriteString(word)
		}
		w.WriteBool(m.HasPerm)
		if m.HasPerm {
			encodePermSet(w, m.Perm)
		}
	}

	w.WriteMapHeader(len(snap.Aliases))
	for name, target := range snap.Aliases {
		w.WriteString(name)
		w.WriteString(target)
	}

	w.WriteMapHeader(len(snap.BuiltinCommandPerms))
	for name, p := range snap.BuiltinCommandPerms {
		w.WriteString(name)
		encodePermSet(w, p)
	}

	w.WriteListHeader(len(snap.Globals))
	for _, g := range snap.Globals {
		w.WriteString(g.Name)
		w.WriteS64(int64(g.Kind))
		w.WriteString(g.S)
		w.WriteS64(g.I)
		w.WriteFloat64(g.D)
		w.WriteBool(g.B)
	}
}

func decodeInterpreterState(r *codec.Reader) (registry.Snapshot, error) {
	snap := registry.Snapshot{
		Aliases:             map[string]string{},
		BuiltinCommandPerms: map[string]perm.PermissionSet{},
	}

	nm, err := r.ReadListHeader()
	if err != nil {
		return snap, err
	}
	for i := 0; i < nm; i++ {
		rec := registry.MacroRecord{}
		if rec.Name, err = r.ReadString(); err != nil {
			return snap, err
		}
		nw, err := r.ReadListHeader()
		if err != nil {
			return snap, err
		}
		for j := 0; j < nw; j++ {
			word, err := r.ReadString()
			if err != nil {
				return snap, err
			}
			rec.Words = append(rec.Words, word)
		}
		if rec.HasPerm, err = r.ReadBool(); err != nil {
			return snap, err
		}
		if rec.HasPerm {
			if rec.Perm, err = decodePermSet(r); err != nil {
				return snap, err
			}
		}
		snap.Macros = append(snap.Macros, rec)
	}

	na, ordered, err := r.ReadMapHeader()
	_ = ordered
	if err != nil {
		return snap, err
	}
	for i := 0; i < na; i++ {
		name, err := r.ReadString()
		if err != nil {
			return snap, err
		}
		target, err := r.ReadString()
		if err != nil {
			return snap, err
		}
		snap.Aliases[name] = target
	}

	nb, _, err := r.ReadMapHeader()
	if err != nil {
		return snap, err
	}
	for i := 0; i < nb; i++ {
		name, err := r.ReadString()
		if err != nil {
			return snap, err
		}
		p, err := decodePermSet(r)
		if err != nil {
			return snap, err
		}
		snap.BuiltinCommandPerms[name] = p
	}

	ng, err := r.ReadListHeader()
	if err != nil {
		return snap, err
	}
	for i := 0; i < ng; i++ {
		g := registry.ScalarGlobal{}
		if g.Name, err = r.ReadString(); err != nil {
			return snap, err
		}
		kind, err := r.ReadS64()
		if err != nil {
			return snap, err
		}
		g.Kind = value.Kind(kind)
		if g.S, err = r.ReadString(); err != nil {
			return snap, err
		}
		if g.I, err = r.ReadS64(); err != nil {
			return snap, err
		}
		if g.D, err = r.ReadFloat64(); err != nil {
			return snap, err
		}
		if g.B, err = r.ReadBool(); err != nil {
			return snap, err
		}
		snap.Globals = append(snap.Globals, g)
	}

	return snap, nil
}

// encodeMarkovData writes the word table and transition table (spec.md
// §4.2's markov-data section; §3's WordTable/Table shapes).
func encodeMarkovData(w *codec.Writer, words []string, edges []markov.TableEdge) {
	w.WriteListHeader(len(words))
	for _, k := range words {
		w.WriteString(k)
	}

	w.WriteListHeader(len(edges))
	for _, e := range edges {
		w.WriteString(e.Key)
		w.WriteListHeader(len(e.Entries))
		for _, f := range e.Entries {
			w.WriteS64(int64(f.Index))
			w.WriteS64(f.Freq)
		}
	}
}

func decodeMarkovData(r *codec.Reader) ([]string, []markov.TableEdge, error) {
	nw, err := r.ReadListHeader()
	if err != nil {
		return nil, nil, err
	}
	words := make([]string, 0, nw)
	for i := 0; i < nw; i++ {
		k, err := r.ReadString()
		if err != nil {
			return nil, nil, err
		}
		words = append(words, k)
	}

	ne, err := r.ReadListHeader()
	if err != nil {
		return nil, nil, err
	}
	edges := make([]markov.TableEdge, 0, ne)
	for i := 0; i < ne; i++ {
		e := markov.TableEdge{}
		if e.Key, err = r.ReadString(); err != nil {
			return nil, nil, err
		}
		nf, err := r.ReadListHeader()
		if err != nil {
			return nil, nil, err
		}
		for j := 0; j < nf; j++ {
			idx, err := r.ReadS64()
			if err != nil {
				return nil, nil, err
			}
			freq, err := r.ReadS64()
			if err != nil {
				return nil, nil, err
			}
			e.Entries = append(e.Entries, markov.WordFreq{Index: int(idx), Freq: freq})
		}
		edges = append(edges, e)
	}

	return words, edges, nil
}
