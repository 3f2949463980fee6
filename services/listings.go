package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	geo "github.com/phillip/volunteer-listings-go/geo"
	mailer "github.com/phillip/volunteer-listings-go/mailer"
	models "github.com/phillip/volunteer-listings-go/models"
	scheduler "github.com/phillip/volunteer-listings-go/scheduler"
	store "github.com/phillip/volunteer-listings-go/store"
	utils "github.com/phillip/volunteer-listings-go/utils"
)

// ReminderKind is the scheduler job kind for end-of-event reminders.
const ReminderKind = "listing.reminder"

type ListingStore interface {
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Listing, error)
	FindAll(ctx context.Context) ([]models.Listing, error)
	SearchText(ctx context.Context, query string) ([]models.Listing, error)
	FindBySkill(ctx context.Context, skill string) ([]models.Listing, error)
	Update(ctx context.Context, id primitive.ObjectID, fields bson.M) (*models.Listing, error)
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
	AddParticipant(ctx context.Context, id, userID primitive.ObjectID) error
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByLocation(ctx context.Context, location string) ([]models.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
}

type Scheduler interface {
	Schedule(ctx context.Context, job scheduler.Job) (string, error)
	Cancel(ctx context.Context, id string) error
}

// Deps are the collaborators of ListingService. Images may be nil.
type Deps struct {
	Listings  ListingStore
	Users     UserStore
	Geocoder  geo.Geocoder
	Distances geo.DistanceOracle
	Notifier  mailer.Notifier
	Scheduler Scheduler
	Images    utils.ImageStore

	Location     *time.Location
	ReminderLead time.Duration
	Now          func() time.Time
}

type ListingService struct {
	listings  ListingStore
	users     UserStore
	geocoder  geo.Geocoder
	distances geo.DistanceOracle
	notifier  mailer.Notifier
	scheduler Scheduler
	images    utils.ImageStore

	loc  *time.Location
	lead time.Duration
	now  func() time.Time
}

func NewListingService(d Deps) *ListingService {
	s := &ListingService{
		listings:  d.Listings,
		users:     d.Users,
		geocoder:  d.Geocoder,
		distances: d.Distances,
		notifier:  d.Notifier,
		scheduler: d.Scheduler,
		images:    d.Images,
		loc:       d.Location,
		lead:      d.ReminderLead,
		now:       d.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.lead <= 0 {
		s.lead = DefaultReminderLead
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ListingInput carries the user-supplied listing fields. Empty strings mean
// "unchanged" on update.
type ListingInput struct {
	EventName        string
	OrganizationName string
	Description      string
	Location         string
	Country          string
	DateFrom         string
	DateTo           string
	TimeFrom         string
	TimeTo           string
	Skills           []string
}

type CreateResult struct {
	Listing    *models.Listing
	ReminderID string
	// Warning is a non-fatal notice for the requester.
	Warning string
}

// ReminderID is the scheduler job id used for a listing's reminder.
func ReminderID(listingID primitive.ObjectID) string {
	return "reminder:" + listingID.Hex()
}

// ---------------- CREATE ----------------

// Create persists a listing with geocoded coordinates and schedules a
// reminder for the users located where the event takes place.
func (s *ListingService) Create(ctx context.Context, requester primitive.ObjectID, in ListingInput, img models.Image) (*CreateResult, error) {
	in = in.trimmed()
	if requester.IsZero() {
		return nil, ErrForbidden
	}
	if in.EventName == "" || in.OrganizationName == "" {
		return nil, invalid("event name and organization name are required")
	}
	if in.Country == "" || in.Location == "" {
		return nil, invalid("country and location are required")
	}
	if img.Filename == "" || img.URL == "" {
		return nil, invalid("an uploaded image is required")
	}
	if err := in.validateSchedule(); err != nil {
		return nil, err
	}
	end, err := EndsAt(in.DateTo, in.TimeTo, s.loc)
	if err != nil {
		return nil, err
	}
	fireAt := ReminderAt(end, s.lead)

	now := s.now()
	listing := &models.Listing{
		ID:               primitive.NewObjectID(),
		EventName:        in.EventName,
		OrganizationName: in.OrganizationName,
		Description:      in.Description,
		Location:         in.Location,
		Country:          in.Country,
		Date:             models.Span{From: in.DateFrom, To: in.DateTo},
		Time:             models.Span{From: in.TimeFrom, To: in.TimeTo},
		Skills:           in.skills(),
		Image:            img,
		Owner:            requester,
		Reviews:          []primitive.ObjectID{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	point, err := s.geocode(ctx, listing.Country, listing.Location)
	if err != nil {
		return nil, err
	}
	listing.Coordinates = point

	if err := s.listings.Create(ctx, listing); err != nil {
		return nil, fmt.Errorf("save listing: %w", err)
	}
	result := &CreateResult{Listing: listing}

	nearby, err := s.users.FindByLocation(ctx, listing.Location)
	if err != nil {
		log.Printf("listings: find users near %q: %v", listing.Location, err)
		result.Warning = "Could not notify users near the event"
		return result, nil
	}
	if len(nearby) == 0 {
		result.Warning = "No users near the event"
		return result, nil
	}
	if !end.After(now) {
		log.Printf("listings: %s already ended, no reminder scheduled", listing.ID.Hex())
		return result, nil
	}

	job := scheduler.Job{
		ID:     ReminderID(listing.ID),
		Kind:   ReminderKind,
		FireAt: fireAt,
		Payload: models.ReminderPayload{
			ListingID:    listing.ID.Hex(),
			Organization: listing.OrganizationName,
			EventName:    listing.EventName,
			Recipients:   emails(nearby),
		},
	}
	id, err := s.scheduler.Schedule(ctx, job)
	if err != nil {
		log.Printf("listings: schedule reminder for %s: %v", listing.ID.Hex(), err)
		return result, nil
	}
	result.ReminderID = id
	return result, nil
}

// SendReminder is the scheduler handler for ReminderKind. Every recipient is
// mailed independently; the returned error only summarizes failures.
func (s *ListingService) SendReminder(ctx context.Context, job scheduler.Job) error {
	p := job.Payload
	msgs := make([]mailer.Message, 0, len(p.Recipients))
	for _, to := range p.Recipients {
		msgs = append(msgs, mailer.Message{
			To:      to,
			Subject: "Important Announcement from: " + p.Organization,
			Text:    "Hurry Up Event is about to end",
		})
	}
	errs := mailer.SendEach(ctx, s.notifier, msgs)
	if n := mailer.Failed(errs); n > 0 {
		return fmt.Errorf("%w: %d of %d reminder emails failed", ErrUpstream, n, len(msgs))
	}
	return nil
}

// ---------------- UPDATE ----------------

// Update merges in over the stored listing, always re-geocodes the resulting
// address and persists with one write. img replaces the image when non-nil.
func (s *ListingService) Update(ctx context.Context, requester, id primitive.ObjectID, in ListingInput, img *models.Image) (*models.Listing, error) {
	in = in.trimmed()
	existing, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanModify(requester, existing) {
		return nil, ErrForbidden
	}
	if err := in.validateSchedule(); err != nil {
		return nil, err
	}

	fields := bson.M{}
	setIf := func(key, v string) {
		if v != "" {
			fields[key] = v
		}
	}
	setIf("event_name", in.EventName)
	setIf("organization_name", in.OrganizationName)
	setIf("description", in.Description)
	setIf("location", in.Location)
	setIf("country", in.Country)
	setIf("date.from", in.DateFrom)
	setIf("date.to", in.DateTo)
	setIf("time.from", in.TimeFrom)
	setIf("time.to", in.TimeTo)
	if in.Skills != nil {
		fields["skills"] = in.skills()
	}
	if img != nil {
		fields["image"] = *img
	}

	country, location := existing.Country, existing.Location
	if in.Country != "" {
		country = in.Country
	}
	if in.Location != "" {
		location = in.Location
	}
	point, err := s.geocode(ctx, country, location)
	if err != nil {
		return nil, err
	}
	fields["coordinates"] = point

	updated, err := s.listings.Update(ctx, id, fields)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}

	if img != nil && existing.Image != (models.Image{}) && existing.Image != *img {
		s.destroyImage(ctx, existing.Image)
	}
	return updated, nil
}

// ---------------- DELETE ----------------

// Delete removes the listing and cancels its reminder. An unknown id succeeds.
func (s *ListingService) Delete(ctx context.Context, requester, id primitive.ObjectID) error {
	existing, err := s.listings.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find listing: %w", err)
	}
	if !CanModify(requester, existing) {
		return ErrForbidden
	}

	if _, err := s.listings.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if err := s.scheduler.Cancel(ctx, ReminderID(id)); err != nil {
		log.Printf("listings: cancel reminder for %s: %v", id.Hex(), err)
	}
	if existing.Image != (models.Image{}) {
		s.destroyImage(ctx, existing.Image)
	}
	return nil
}

// ---------------- READ ----------------

func (s *ListingService) List(ctx context.Context) ([]models.Listing, error) {
	return s.listings.FindAll(ctx)
}

// Get returns the listing with its roster resolved to participant summaries
// in roster order.
func (s *ListingService) Get(ctx context.Context, id primitive.ObjectID) (*models.Listing, error) {
	listing, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	users, err := s.users.FindByIDs(ctx, listing.Reviews)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	byID := make(map[primitive.ObjectID]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	listing.Participants = []models.Participant{}
	for _, uid := range listing.Reviews {
		if u, ok := byID[uid]; ok {
			listing.Participants = append(listing.Participants, models.Participant{
				ID: u.ID, Username: u.Username, ImageURL: u.Image.URL,
			})
		}
	}
	return listing, nil
}

// Volunteer returns a listing together with one user for the volunteer view.
func (s *ListingService) Volunteer(ctx context.Context, listingID, userID primitive.ObjectID) (*models.Listing, *models.User, error) {
	listing, err := s.find(ctx, listingID)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find volunteer: %w", err)
	}
	return listing, user, nil
}

// ShareForm returns the listing for the owner's broadcast form.
func (s *ListingService) ShareForm(ctx context.Context, requester, id primitive.ObjectID) (*models.Listing, error) {
	listing, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanModify(requester, listing) {
		return nil, ErrForbidden
	}
	return listing, nil
}

// ---------------- SEARCH ----------------

// SearchText matches query case-insensitively against event name,
// organization name and skills. An empty query is rejected.
func (s *ListingService) SearchText(ctx context.Context, query string) ([]models.Listing, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalid("Please enter the query!")
	}
	return s.listings.SearchText(ctx, query)
}

// SearchSkill returns listings that require skill exactly.
func (s *ListingService) SearchSkill(ctx context.Context, skill string) ([]models.Listing, error) {
	skill = strings.TrimSpace(skill)
	if skill == "" {
		return nil, invalid("Please choose a skill!")
	}
	return s.listings.FindBySkill(ctx, skill)
}

type NearbyResult struct {
	Listings []models.Listing
	// Considered is how many listings were measured.
	Considered int
}

// Nearby returns the listings whose driving distance from origin is at most
// maxKm, in stored order.
func (s *ListingService) Nearby(ctx context.Context, origin models.GeoPoint, maxKm float64) (*NearbyResult, error) {
	if !origin.Valid() || math.IsNaN(maxKm) || math.IsInf(maxKm, 0) || maxKm < 0 {
		return nil, invalid("Missing parameters")
	}
	all, err := s.listings.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}

	dests := make([]geo.Destination, 0, len(all))
	for _, l := range all {
		if l.Coordinates.Valid() {
			dests = append(dests, geo.Destination{Key: l.ID.Hex(), Point: l.Coordinates})
		}
	}
	result := &NearbyResult{Listings: []models.Listing{}, Considered: len(dests)}
	if len(dests) == 0 {
		return result, nil
	}

	distances, err := s.distances.Distances(ctx, origin, dests)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	byKey := make(map[string]geo.DistanceResult, len(distances))
	for _, d := range distances {
		byKey[d.Key] = d
	}
	for _, l := range all {
		d, ok := byKey[l.ID.Hex()]
		if ok && d.Status == geo.StatusOK && d.Kilometers() <= maxKm {
			result.Listings = append(result.Listings, l)
		}
	}
	return result, nil
}

// ---------------- PARTICIPATION ----------------

// Participate adds userID to the listing roster exactly once.
func (s *ListingService) Participate(ctx context.Context, userID, listingID primitive.ObjectID) error {
	if userID.IsZero() {
		return ErrForbidden
	}
	err := s.listings.AddParticipant(ctx, listingID, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrAlreadyParticipant):
		return ErrDuplicateParticipation
	case err != nil:
		return fmt.Errorf("add participant: %w", err)
	}
	return nil
}

// ---------------- BROADCAST ----------------

type BroadcastResult struct {
	Attempted int
	Failed    int
}

// Broadcast mails subject/content from the owner to every distinct
// participant email. Sends are independent of each other.
func (s *ListingService) Broadcast(ctx context.Context, requester, id primitive.ObjectID, subject, content string) (*BroadcastResult, error) {
	listing, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanModify(requester, listing) {
		return nil, ErrForbidden
	}

	participants, err := s.users.FindByIDs(ctx, listing.Reviews)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	to := emails(participants)
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}

	from := ""
	if owner, err := s.users.FindByID(ctx, listing.Owner); err == nil {
		from = owner.Email
	} else {
		log.Printf("listings: owner lookup for %s: %v", id.Hex(), err)
	}

	msgs := make([]mailer.Message, 0, len(to))
	for _, addr := range to {
		msgs = append(msgs, mailer.Message{From: from, To: addr, Subject: subject, Text: content})
	}
	errs := mailer.SendEach(ctx, s.notifier, msgs)
	return &BroadcastResult{Attempted: len(msgs), Failed: mailer.Failed(errs)}, nil
}

// ---------------- HELPERS ----------------

func (s *ListingService) find(ctx context.Context, id primitive.ObjectID) (*models.Listing, error) {
	listing, err := s.listings.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	return listing, nil
}

func (s *ListingService) geocode(ctx context.Context, country, location string) (models.GeoPoint, error) {
	if strings.TrimSpace(country) == "" || strings.TrimSpace(location) == "" {
		return models.GeoPoint{}, invalid("country and location are required")
	}
	point, err := s.geocoder.Geocode(ctx, country+" "+location)
	if errors.Is(err, geo.ErrNoResult) {
		return models.GeoPoint{}, fmt.Errorf("%w: %q", ErrGeocode, country+" "+location)
	}
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return point, nil
}

func (s *ListingService) destroyImage(ctx context.Context, img models.Image) {
	if s.images == nil {
		return
	}
	if err := s.images.Destroy(ctx, img); err != nil {
		log.Printf("listings: destroy image %s: %v", img.Filename, err)
	}
}

// emails returns the distinct non-empty addresses in first-seen order.
func emails(users []models.User) []string {
	seen := make(map[string]bool, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		addr := strings.TrimSpace(u.Email)
		if addr == "" || seen[strings.ToLower(addr)] {
			continue
		}
		seen[strings.ToLower(addr)] = true
		out = append(out, addr)
	}
	return out
}

func (in ListingInput) trimmed() ListingInput {
	in.EventName = strings.TrimSpace(in.EventName)
	in.OrganizationName = strings.TrimSpace(in.OrganizationName)
	in.Description = strings.TrimSpace(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.Country = strings.TrimSpace(in.Country)
	in.DateFrom = strings.TrimSpace(in.DateFrom)
	in.DateTo = strings.TrimSpace(in.DateTo)
	in.TimeFrom = strings.TrimSpace(in.TimeFrom)
	in.TimeTo = strings.TrimSpace(in.TimeTo)
	return in
}

func (in ListingInput) validateSchedule() error {
	for _, d := range []string{in.DateFrom, in.DateTo} {
		if d != "" && !validDate(d) {
			return invalid("invalid date %q, use YYYY-MM-DD", d)
		}
	}
	for _, c := range []string{in.TimeFrom, in.TimeTo} {
		if c != "" && !validClock(c) {
			return invalid("invalid time %q, use HH:MM", c)
		}
	}
	return nil
}

func (in ListingInput) skills() []string {
	out := make([]string, 0, len(in.Skills))
	seen := map[string]bool{}
	for _, s := range in.Skills {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
