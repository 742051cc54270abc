package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/Guildhall/config"
	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/pkg/events"
	"github.com/Gopher0727/Guildhall/internal/pkg/objectstore"
	"github.com/Gopher0727/Guildhall/internal/pkg/scheduler"
	"github.com/Gopher0727/Guildhall/internal/repository"
)

// memDB is an in-memory stand-in for the Postgres schema. Every fake
// repository shares one, so cascades behave like the real thing.
type memDB struct {
	mu       sync.Mutex
	seq      int
	users    map[string]*model.User
	servers  map[string]*model.Server
	channels map[string]*model.Channel
	members  map[string]*model.ServerMember // server:user
	invites  map[string]*model.Invite
	dms      map[string]*model.DirectMessage
	messages map[int64]*model.Message
	typing   map[string]*model.TypingIndicator // user:conversation
	uploads  map[string]*model.Upload
	friends  map[string]*model.Friend
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[string]*model.User{},
		servers:  map[string]*model.Server{},
		channels: map[string]*model.Channel{},
		members:  map[string]*model.ServerMember{},
		invites:  map[string]*model.Invite{},
		dms:      map[string]*model.DirectMessage{},
		messages: map[int64]*model.Message{},
		typing:   map[string]*model.TypingIndicator{},
		uploads:  map[string]*model.Upload{},
		friends:  map[string]*model.Friend{},
	}
}

func (db *memDB) id(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func memberKey(serverID, userID string) string { return serverID + ":" + userID }

// users

type fakeUsers struct{ db *memDB }

func (r fakeUsers) Create(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.users {
		if existing.Username == u.Username || existing.ExternalID == u.ExternalID {
			return repository.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = r.db.id("user")
	}
	cp := *u
	r.db.users[u.ID] = &cp
	return nil
}

func (r fakeUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if u, ok := r.db.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeUsers) FindByIDs(_ context.Context, ids []string) (map[string]*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := map[string]*model.User{}
	for _, id := range ids {
		if u, ok := r.db.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (r fakeUsers) find(match func(*model.User) bool) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeUsers) FindByExternalID(_ context.Context, externalID string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ExternalID == externalID })
}

func (r fakeUsers) FindByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == username })
}

func (r fakeUsers) UpsertByExternalID(_ context.Context, u *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var current *model.User
	for _, existing := range r.db.users {
		if existing.ExternalID == u.ExternalID {
			current = existing
		}
	}
	for _, existing := range r.db.users {
		if existing.Username == u.Username && existing != current {
			return repository.ErrDuplicate
		}
	}
	if current == nil {
		current = &model.User{ID: r.db.id("user"), ExternalID: u.ExternalID}
		r.db.users[current.ID] = current
	}
	current.Username = u.Username
	current.Image = u.Image
	*u = *current
	return nil
}

// servers, channels, members

type fakeServers struct{ db *memDB }

func (r fakeServers) CreateWithDefaultChannel(_ context.Context, s *model.Server, c *model.Channel, owner *model.ServerMember) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if owner.ID == "" {
		owner.ID = r.db.id("member")
	}
	sc, cc, oc := *s, *c, *owner
	r.db.servers[s.ID] = &sc
	r.db.channels[c.ID] = &cc
	r.db.members[memberKey(s.ID, owner.UserID)] = &oc
	return nil
}

func (r fakeServers) FindByID(_ context.Context, id string) (*model.Server, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if s, ok := r.db.servers[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeServers) FindByIDs(_ context.Context, ids []string) ([]*model.Server, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Server
	for _, id := range ids {
		if s, ok := r.db.servers[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeServers) DeleteCascade(_ context.Context, id string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	server, ok := r.db.servers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	var storage []string
	if server.IconID != nil {
		storage = append(storage, *server.IconID)
	}
	delete(r.db.servers, id)
	for cid, c := range r.db.channels {
		if c.ServerID == id {
			storage = append(storage, r.db.purge(cid)...)
			delete(r.db.channels, cid)
		}
	}
	for k, m := range r.db.members {
		if m.ServerID == id {
			delete(r.db.members, k)
		}
	}
	for k, inv := range r.db.invites {
		if inv.ServerID == id {
			delete(r.db.invites, k)
		}
	}
	for _, sid := range storage {
		delete(r.db.uploads, sid)
	}
	return storage, nil
}

// purge drops messages and typing rows of a conversation, returning
// attachment ids. Caller holds mu.
func (db *memDB) purge(conversationID string) []string {
	var attachments []string
	for id, m := range db.messages {
		if m.ConversationID == conversationID {
			if m.AttachmentID != nil {
				attachments = append(attachments, *m.AttachmentID)
			}
			delete(db.messages, id)
		}
	}
	for k, t := range db.typing {
		if t.ConversationID == conversationID {
			delete(db.typing, k)
		}
	}
	return attachments
}

type fakeChannels struct{ db *memDB }

func (r fakeChannels) Create(_ context.Context, c *model.Channel) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *c
	r.db.channels[c.ID] = &cp
	return nil
}

func (r fakeChannels) FindByID(_ context.Context, id string) (*model.Channel, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if c, ok := r.db.channels[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeChannels) ListByServer(_ context.Context, serverID string) ([]*model.Channel, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Channel
	for _, c := range r.db.channels {
		if c.ServerID == serverID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeChannels) DeleteCascade(_ context.Context, id string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.channels[id]; !ok {
		return nil, gorm.ErrRecordNotFound
	}
	delete(r.db.channels, id)
	attachments := r.db.purge(id)
	for _, a := range attachments {
		delete(r.db.uploads, a)
	}
	return attachments, nil
}

type fakeMembers struct{ db *memDB }

func (r fakeMembers) Create(_ context.Context, m *model.ServerMember) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.addMember(m)
}

func (db *memDB) addMember(m *model.ServerMember) error {
	key := memberKey(m.ServerID, m.UserID)
	if _, ok := db.members[key]; ok {
		return repository.ErrDuplicate
	}
	if m.ID == "" {
		m.ID = db.id("member")
	}
	cp := *m
	db.members[key] = &cp
	return nil
}

func (r fakeMembers) Find(_ context.Context, serverID, userID string) (*model.ServerMember, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if m, ok := r.db.members[memberKey(serverID, userID)]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeMembers) Delete(_ context.Context, serverID, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := memberKey(serverID, userID)
	if _, ok := r.db.members[key]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.db.members, key)
	return nil
}

func (r fakeMembers) ListWithUsers(_ context.Context, serverID string) ([]*repository.MemberWithUser, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*repository.MemberWithUser
	for _, m := range r.db.members {
		if m.ServerID != serverID {
			continue
		}
		row := &repository.MemberWithUser{ServerMember: *m}
		if u, ok := r.db.users[m.UserID]; ok {
			row.Username, row.Image = u.Username, u.Image
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r fakeMembers) ListServerIDs(_ context.Context, userID string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []string
	for _, m := range r.db.members {
		if m.UserID == userID {
			out = append(out, m.ServerID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r fakeMembers) UpdateCallState(_ context.Context, serverID, userID string, audio, video bool) (*model.ServerMember, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.members[memberKey(serverID, userID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	m.AudioEnabled, m.VideoEnabled = audio, video
	cp := *m
	return &cp, nil
}

// invites

type fakeInvites struct{ db *memDB }

func (r fakeInvites) Create(_ context.Context, inv *model.Invite) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *inv
	r.db.invites[inv.ID] = &cp
	return nil
}

func (r fakeInvites) FindByID(_ context.Context, id string) (*model.Invite, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if inv, ok := r.db.invites[id]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeInvites) ListByServer(_ context.Context, serverID string) ([]*model.Invite, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Invite
	for _, inv := range r.db.invites {
		if inv.ServerID == serverID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeInvites) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.invites[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.db.invites, id)
	return nil
}

// Redeem mirrors the transactional insert plus guarded increment.
func (r fakeInvites) Redeem(_ context.Context, inviteID string, member *model.ServerMember, now time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	inv, ok := r.db.invites[inviteID]
	if _, dup := r.db.members[memberKey(member.ServerID, member.UserID)]; dup {
		return repository.ErrDuplicate
	}
	if !ok || inv.Exhausted() || inv.ExpiredAt(now) {
		return repository.ErrConditionFailed
	}
	if err := r.db.addMember(member); err != nil {
		return err
	}
	inv.Uses++
	return nil
}

// direct messages

type fakeDMs struct{ db *memDB }

func (r fakeDMs) FindByID(_ context.Context, id string) (*model.DirectMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if dm, ok := r.db.dms[id]; ok {
		cp := *dm
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeDMs) FindByPair(_ context.Context, a, b string) (*model.DirectMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := model.PairKey(a, b)
	for _, dm := range r.db.dms {
		if dm.PairKey == key {
			cp := *dm
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeDMs) Create(_ context.Context, a, b string) (*model.DirectMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := model.PairKey(a, b)
	for _, dm := range r.db.dms {
		if dm.PairKey == key {
			return nil, repository.ErrDuplicate
		}
	}
	dm := &model.DirectMessage{ID: r.db.id("dm"), PairKey: key, CreatedAt: time.Now()}
	r.db.dms[dm.ID] = dm
	cp := *dm
	return &cp, nil
}

func (r fakeDMs) ListByUser(_ context.Context, userID string) ([]*model.DirectMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.DirectMessage
	for _, dm := range r.db.dms {
		a, b := model.PairMembers(dm.PairKey)
		if a == userID || b == userID {
			cp := *dm
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeDMs) IsParticipant(_ context.Context, dmID, userID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	dm, ok := r.db.dms[dmID]
	if !ok {
		return false, nil
	}
	a, b := model.PairMembers(dm.PairKey)
	return a == userID || b == userID, nil
}

// messages

type fakeMessages struct{ db *memDB }

func (r fakeMessages) Create(_ context.Context, m *model.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *m
	r.db.messages[m.ID] = &cp
	return nil
}

func (r fakeMessages) FindByID(_ context.Context, id int64) (*model.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if m, ok := r.db.messages[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeMessages) Delete(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.messages[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.db.messages, id)
	return nil
}

func (r fakeMessages) ListBefore(_ context.Context, conv model.Conversation, before int64, limit int) ([]*model.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Message
	for _, m := range r.db.messages {
		if m.ConversationKind == conv.Kind && m.ConversationID == conv.ID && (before == 0 || m.ID < before) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// typing

type fakeTyping struct{ db *memDB }

func typingKey(userID, conversationID string) string { return userID + ":" + conversationID }

func (r fakeTyping) Upsert(_ context.Context, t *model.TypingIndicator) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := typingKey(t.UserID, t.ConversationID)
	if existing, ok := r.db.typing[key]; ok {
		existing.ExpiresAt = t.ExpiresAt
		return nil
	}
	if t.ID == "" {
		t.ID = r.db.id("typing")
	}
	cp := *t
	r.db.typing[key] = &cp
	return nil
}

func (r fakeTyping) Delete(_ context.Context, userID, conversationID string, stamp *int64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := typingKey(userID, conversationID)
	t, ok := r.db.typing[key]
	if !ok || (stamp != nil && t.ExpiresAt != *stamp) {
		return false, nil
	}
	delete(r.db.typing, key)
	return true, nil
}

func (r fakeTyping) ActiveUsernames(_ context.Context, conversationID, exclude string, nowMs int64) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []string
	for _, t := range r.db.typing {
		if t.ConversationID == conversationID && t.UserID != exclude && t.ExpiresAt > nowMs {
			if u, ok := r.db.users[t.UserID]; ok {
				out = append(out, u.Username)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r fakeTyping) get(userID, conversationID string) (*model.TypingIndicator, bool) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.typing[typingKey(userID, conversationID)]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// uploads

type fakeUploads struct{ db *memDB }

func (r fakeUploads) Create(_ context.Context, u *model.Upload) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *u
	r.db.uploads[u.ID] = &cp
	return nil
}

func (r fakeUploads) FindByID(_ context.Context, id string) (*model.Upload, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if u, ok := r.db.uploads[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeUploads) Attach(_ context.Context, id, ownerID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.uploads[id]
	if !ok || u.OwnerID != ownerID || u.AttachedAt != nil {
		return repository.ErrConditionFailed
	}
	u.AttachedAt = &at
	return nil
}

func (r fakeUploads) Detach(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if u, ok := r.db.uploads[id]; ok {
		u.AttachedAt = nil
	}
	return nil
}

func (r fakeUploads) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.uploads[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.db.uploads, id)
	return nil
}

// friends

type fakeFriends struct{ db *memDB }

func (r fakeFriends) Create(_ context.Context, f *model.Friend) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.friends {
		if existing.RequesterID == f.RequesterID && existing.AddresseeID == f.AddresseeID {
			return repository.ErrDuplicate
		}
	}
	if f.ID == "" {
		f.ID = r.db.id("friend")
	}
	cp := *f
	r.db.friends[f.ID] = &cp
	return nil
}

func (r fakeFriends) FindByID(_ context.Context, id string) (*model.Friend, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if f, ok := r.db.friends[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeFriends) FindBetween(_ context.Context, a, b string) (*model.Friend, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, f := range r.db.friends {
		if (f.RequesterID == a && f.AddresseeID == b) || (f.RequesterID == b && f.AddresseeID == a) {
			cp := *f
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r fakeFriends) UpdateStatus(_ context.Context, id string, status model.FriendStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.friends[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	f.Status = status
	return nil
}

func (r fakeFriends) list(match func(*model.Friend) bool) []*model.Friend {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*model.Friend
	for _, f := range r.db.friends {
		if match(f) {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out
}

func (r fakeFriends) ListAccepted(_ context.Context, userID string) ([]*model.Friend, error) {
	return r.list(func(f *model.Friend) bool {
		return f.Status == model.FriendAccepted && (f.RequesterID == userID || f.AddresseeID == userID)
	}), nil
}

func (r fakeFriends) ListPendingFor(_ context.Context, userID string) ([]*model.Friend, error) {
	return r.list(func(f *model.Friend) bool {
		return f.Status == model.FriendPending && f.AddresseeID == userID
	}), nil
}

// infrastructure fakes

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types(topic string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e.Type)
		}
	}
	return out
}

type scheduledJob struct {
	kind    string
	key     string
	payload TypingRemoval
	runAt   time.Time
}

type recordingJobs struct {
	mu   sync.Mutex
	jobs []scheduledJob
	err  error
}

func (j *recordingJobs) Schedule(_ context.Context, kind, key string, payload any, runAt time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	p, _ := payload.(TypingRemoval)
	j.jobs = append(j.jobs, scheduledJob{kind: kind, key: key, payload: p, runAt: runAt})
	return nil
}

func (j *recordingJobs) take() []scheduledJob {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.jobs
	j.jobs = nil
	return out
}

var _ scheduler.Enqueuer = (*recordingJobs)(nil)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) PresignedPut(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/put/" + key, nil
}

func (s *memStore) PresignedGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blobs.test/get/" + key, nil
}

func (s *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, objectstore.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.removed = append(s.removed, key)
	return nil
}

func (s *memStore) wasRemoved(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.removed {
		if k == key {
			return true
		}
	}
	return false
}

type seqIDs struct {
	mu   sync.Mutex
	next int64
}

func (g *seqIDs) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return g.next, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires every service over one memDB.
type harness struct {
	db        *memDB
	store     *memStore
	publisher *recordingPublisher
	jobs      *recordingJobs
	clock     *fakeClock

	guard    *Guard
	storage  *StorageService
	servers  *ServerService
	channels *ChannelService
	invites  *InviteService
	messages *MessageService
	typing   *TypingService
	dms      *DirectMessageService
	friends  *FriendService
}

func newHarness() *harness {
	h := &harness{
		db:        newMemDB(),
		store:     newMemStore(),
		publisher: &recordingPublisher{},
		jobs:      &recordingJobs{},
		clock:     &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	log := zap.NewNop()
	users := fakeUsers{h.db}
	h.guard = NewGuard(fakeServers{h.db}, fakeChannels{h.db}, fakeMembers{h.db}, fakeDMs{h.db})
	h.storage = NewStorageService(fakeUploads{h.db}, h.store, &config.MinioConfig{}, log)
	h.servers = NewServerService(fakeServers{h.db}, fakeMembers{h.db}, h.guard, h.storage, h.publisher, log).(*ServerService)
	h.channels = NewChannelService(fakeChannels{h.db}, h.guard, h.storage, h.publisher, log).(*ChannelService)
	h.invites = NewInviteService(fakeInvites{h.db}, fakeMembers{h.db}, users, h.guard, h.storage, h.publisher, log).(*InviteService)
	h.invites.now = h.clock.Now
	h.messages = NewMessageService(fakeMessages{h.db}, users, h.guard, h.storage, &seqIDs{}, h.jobs, h.publisher, log).(*MessageService)
	h.messages.now = h.clock.Now
	h.typing = NewTypingService(fakeTyping{h.db}, h.guard, h.jobs, h.publisher, log)
	h.typing.now = h.clock.Now
	h.dms = NewDirectMessageService(fakeDMs{h.db}, users, h.guard, h.publisher, log).(*DirectMessageService)
	h.friends = NewFriendService(fakeFriends{h.db}, users, h.publisher, log).(*FriendService)
	return h
}

func (h *harness) user(name string) *model.User {
	u := &model.User{ExternalID: "ext|" + strings.ToLower(name), Username: name}
	if err := (fakeUsers{h.db}).Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

func (h *harness) upload(owner *model.User) string {
	id := h.db.id("blob")
	_ = (fakeUploads{h.db}).Create(context.Background(), &model.Upload{ID: id, OwnerID: owner.ID})
	_ = h.store.Put(context.Background(), id, strings.NewReader("data"), 4, "application/octet-stream")
	return id
}

func (h *harness) createServer(owner *model.User, name string) *CreateServerResult {
	res, err := h.servers.Create(context.Background(), owner, &CreateServerRequest{Name: name})
	if err != nil {
		panic(err)
	}
	return res
}

func (h *harness) join(user *model.User, serverID string) {
	_ = (fakeMembers{h.db}).Create(context.Background(), &model.ServerMember{ServerID: serverID, UserID: user.ID})
}
