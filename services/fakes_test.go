package services

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	geo "github.com/phillip/volunteer-listings-go/geo"
	mailer "github.com/phillip/volunteer-listings-go/mailer"
	models "github.com/phillip/volunteer-listings-go/models"
	scheduler "github.com/phillip/volunteer-listings-go/scheduler"
	store "github.com/phillip/volunteer-listings-go/store"
)

type memListings struct {
	mu    sync.Mutex
	items []models.Listing
}

func (m *memListings) Create(ctx context.Context, l *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, *l)
	return nil
}

func (m *memListings) idx(id primitive.ObjectID) int {
	for i := range m.items {
		if m.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *memListings) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.idx(id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	l := m.items[i]
	l.Reviews = append([]primitive.ObjectID(nil), l.Reviews...)
	return &l, nil
}

func (m *memListings) FindAll(ctx context.Context) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Listing(nil), m.items...), nil
}

func (m *memListings) SearchText(ctx context.Context, query string) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(query)
	out := []models.Listing{}
	for _, l := range m.items {
		hit := strings.Contains(strings.ToLower(l.EventName), q) ||
			strings.Contains(strings.ToLower(l.OrganizationName), q)
		for _, s := range l.Skills {
			hit = hit || strings.Contains(strings.ToLower(s), q)
		}
		if hit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memListings) FindBySkill(ctx context.Context, skill string) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Listing{}
	for _, l := range m.items {
		for _, s := range l.Skills {
			if s == skill {
				out = append(out, l)
				break
			}
		}
	}
	return out, nil
}

func (m *memListings) Update(ctx context.Context, id primitive.ObjectID, fields bson.M) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.idx(id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	l := &m.items[i]
	for k, v := range fields {
		switch k {
		case "event_name":
			l.EventName = v.(string)
		case "organization_name":
			l.OrganizationName = v.(string)
		case "description":
			l.Description = v.(string)
		case "location":
			l.Location = v.(string)
		case "country":
			l.Country = v.(string)
		case "date.from":
			l.Date.From = v.(string)
		case "date.to":
			l.Date.To = v.(string)
		case "time.from":
			l.Time.From = v.(string)
		case "time.to":
			l.Time.To = v.(string)
		case "skills":
			l.Skills = v.([]string)
		case "image":
			l.Image = v.(models.Image)
		case "coordinates":
			l.Coordinates = v.(models.GeoPoint)
		}
	}
	out := *l
	return &out, nil
}

func (m *memListings) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.idx(id)
	if i < 0 {
		return false, nil
	}
	m.items = append(m.items[:i], m.items[i+1:]...)
	return true, nil
}

func (m *memListings) AddParticipant(ctx context.Context, id, userID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.idx(id)
	if i < 0 {
		return store.ErrNotFound
	}
	if m.items[i].HasParticipant(userID) {
		return store.ErrAlreadyParticipant
	}
	m.items[i].Reviews = append(m.items[i].Reviews, userID)
	return nil
}

type memUsers struct {
	items []models.User
}

func (m *memUsers) Create(ctx context.Context, u *models.User) error {
	for _, x := range m.items {
		if x.Email == u.Email {
			return store.ErrDuplicateEmail
		}
	}
	m.items = append(m.items, *u)
	return nil
}

func (m *memUsers) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	for _, u := range m.items {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.items {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memUsers) FindByLocation(ctx context.Context, location string) ([]models.User, error) {
	out := []models.User{}
	for _, u := range m.items {
		if u.Location == location {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUsers) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	out := []models.User{}
	for _, u := range m.items {
		for _, id := range ids {
			if u.ID == id {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

func (m *memUsers) add(name, email, location string) models.User {
	u := models.User{ID: primitive.NewObjectID(), Username: name, Email: email, Location: location}
	m.items = append(m.items, u)
	return u
}

type stubGeocoder struct {
	mu        sync.Mutex
	addresses []string
	point     models.GeoPoint
	err       error
}

func (g *stubGeocoder) Geocode(ctx context.Context, address string) (models.GeoPoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addresses = append(g.addresses, address)
	if g.err != nil {
		return models.GeoPoint{}, g.err
	}
	return g.point, nil
}

// stubOracle answers from a fixed key->meters table, in reverse order.
type stubOracle struct {
	meters map[string]int
	err    error
	calls  int
}

func (o *stubOracle) Distances(ctx context.Context, origin models.GeoPoint, dests []geo.Destination) ([]geo.DistanceResult, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	out := make([]geo.DistanceResult, 0, len(dests))
	for i := len(dests) - 1; i >= 0; i-- {
		d := dests[i]
		m, ok := o.meters[d.Key]
		status := geo.StatusOK
		if !ok {
			status = "ZERO_RESULTS"
		}
		out = append(out, geo.DistanceResult{Key: d.Key, Status: status, Meters: m})
	}
	return out, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []mailer.Message
	failTo map[string]bool
}

func (n *recordingNotifier) Send(ctx context.Context, msg mailer.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	if n.failTo[msg.To] {
		return errors.New("relay rejected")
	}
	return nil
}

type recordingScheduler struct {
	jobs     []scheduler.Job
	canceled []string
	err      error
}

func (s *recordingScheduler) Schedule(ctx context.Context, job scheduler.Job) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.jobs = append(s.jobs, job)
	return job.ID, nil
}

func (s *recordingScheduler) Cancel(ctx context.Context, id string) error {
	s.canceled = append(s.canceled, id)
	return nil
}

type recordingImages struct {
	destroyed []models.Image
}

func (r *recordingImages) Upload(ctx context.Context, fh *multipart.FileHeader) (models.Image, error) {
	return models.Image{Filename: "listings/" + fh.Filename, URL: "https://img.test/" + fh.Filename}, nil
}

func (r *recordingImages) Destroy(ctx context.Context, img models.Image) error {
	r.destroyed = append(r.destroyed, img)
	return nil
}

type harness struct {
	svc       *ListingService
	listings  *memListings
	users     *memUsers
	geocoder  *stubGeocoder
	oracle    *stubOracle
	notifier  *recordingNotifier
	scheduler *recordingScheduler
	images    *recordingImages
	loc       *time.Location
	now       time.Time
}

func newHarness() *harness {
	loc := time.FixedZone("IST", 5*3600+1800)
	h := &harness{
		listings:  &memListings{},
		users:     &memUsers{},
		geocoder:  &stubGeocoder{point: models.NewGeoPoint(19.07, 72.87)},
		oracle:    &stubOracle{meters: map[string]int{}},
		notifier:  &recordingNotifier{failTo: map[string]bool{}},
		scheduler: &recordingScheduler{},
		images:    &recordingImages{},
		loc:       loc,
		now:       time.Date(2026, 3, 1, 9, 0, 0, 0, loc),
	}
	h.svc = NewListingService(Deps{
		Listings:  h.listings,
		Users:     h.users,
		Geocoder:  h.geocoder,
		Distances: h.oracle,
		Notifier:  h.notifier,
		Scheduler: h.scheduler,
		Images:    h.images,
		Location:  loc,
		Now:       func() time.Time { return h.now },
	})
	return h
}

var testImage = models.Image{Filename: "listings/cover", URL: "https://img.test/cover.jpg"}

func sampleInput() ListingInput {
	return ListingInput{
		EventName:        "Music Fest",
		OrganizationName: "Helping Hands",
		Description:      "Stage crew needed",
		Location:         "Mumbai",
		Country:          "India",
		DateFrom:         "2026-04-10",
		DateTo:           "2026-04-12",
		TimeFrom:         "10:00",
		TimeTo:           "18:00",
		Skills:           []string{"Music", "Logistics"},
	}
}

// seed stores a listing owned by owner without going through Create.
func (h *harness) seed(owner primitive.ObjectID, name string, skills ...string) models.Listing {
	l := models.Listing{
		ID:               primitive.NewObjectID(),
		EventName:        name,
		OrganizationName: "Org " + name,
		Location:         "Pune",
		Country:          "India",
		Skills:           skills,
		Owner:            owner,
		Image:            testImage,
		Coordinates:      models.NewGeoPoint(18.52, 73.85),
		Reviews:          []primitive.ObjectID{},
	}
	h.listings.items = append(h.listings.items, l)
	return l
}
