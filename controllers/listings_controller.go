package controllers

import (
	"context"
	"errors"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/volunteer-listings-go/models"
	services "github.com/phillip/volunteer-listings-go/services"
	utils "github.com/phillip/volunteer-listings-go/utils"
)

const requestTimeout = 30 * time.Second

type ListingService interface {
	Create(ctx context.Context, requester primitive.ObjectID, in services.ListingInput, img models.Image) (*services.CreateResult, error)
	Update(ctx context.Context, requester, id primitive.ObjectID, in services.ListingInput, img *models.Image) (*models.Listing, error)
	Delete(ctx context.Context, requester, id primitive.ObjectID) error
	List(ctx context.Context) ([]models.Listing, error)
	Get(ctx context.Context, id primitive.ObjectID) (*models.Listing, error)
	Volunteer(ctx context.Context, listingID, userID primitive.ObjectID) (*models.Listing, *models.User, error)
	ShareForm(ctx context.Context, requester, id primitive.ObjectID) (*models.Listing, error)
	SearchText(ctx context.Context, query string) ([]models.Listing, error)
	SearchSkill(ctx context.Context, skill string) ([]models.Listing, error)
	Nearby(ctx context.Context, origin models.GeoPoint, maxKm float64) (*services.NearbyResult, error)
	Participate(ctx context.Context, userID, listingID primitive.ObjectID) error
	Broadcast(ctx context.Context, requester, id primitive.ObjectID, subject, content string) (*services.BroadcastResult, error)
}

type listingForm struct {
	EventName        string   `form:"event_name"`
	OrganizationName string   `form:"organization_name"`
	Description      string   `form:"description"`
	Location         string   `form:"location"`
	Country          string   `form:"country"`
	DateFrom         string   `form:"date_from" binding:"omitempty,date"`
	DateTo           string   `form:"date_to" binding:"omitempty,date"`
	TimeFrom         string   `form:"time_from" binding:"omitempty,clock"`
	TimeTo           string   `form:"time_to" binding:"omitempty,clock"`
	Skills           []string `form:"skills"`
}

func (f listingForm) input() services.ListingInput {
	return services.ListingInput{
		EventName:        f.EventName,
		OrganizationName: f.OrganizationName,
		Description:      f.Description,
		Location:         f.Location,
		Country:          f.Country,
		DateFrom:         f.DateFrom,
		DateTo:           f.DateTo,
		TimeFrom:         f.TimeFrom,
		TimeTo:           f.TimeTo,
		Skills:           f.Skills,
	}
}

// ---------------- CREATE ----------------
func CreateListing(svc ListingService, images utils.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}

		var form listingForm
		if err := c.ShouldBind(&form); err != nil {
			notice(c, http.StatusBadRequest, "error", err.Error(), "/listings/new", nil)
			return
		}

		// --- Image upload ---
		fh, err := c.FormFile("image")
		if err != nil {
			notice(c, http.StatusBadRequest, "error", "An image is required", "/listings/new", nil)
			return
		}
		if images == nil {
			notice(c, http.StatusServiceUnavailable, "error", "Image uploads are not configured", "/listings", nil)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		img, err := images.Upload(ctx, fh)
		if err != nil {
			log.Printf("controllers: upload %s: %v", fh.Filename, err)
			notice(c, http.StatusBadGateway, "error", "Image upload failed", "/listings/new", nil)
			return
		}

		// --- Save listing ---
		res, err := svc.Create(ctx, userID, form.input(), img)
		if err != nil {
			discard(images, img)
			fail(c, err, "Failed to create listing. Please try again.", "/listings")
			return
		}

		extra := gin.H{"listing": res.Listing}
		if res.Warning != "" {
			extra["warning"] = res.Warning
		}
		if res.ReminderID != "" {
			extra["reminder_id"] = res.ReminderID
		}
		success(c, http.StatusCreated, "New Listing created!", "/listings/"+res.Listing.ID.Hex(), extra)
	}
}

// NewListingForm describes the fields CreateListing accepts.
func NewListingForm() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := currentUser(c); !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"action": "/listings",
			"method": http.MethodPost,
			"fields": []gin.H{
				{"name": "event_name", "required": true},
				{"name": "organization_name", "required": true},
				{"name": "description"},
				{"name": "location", "required": true},
				{"name": "country", "required": true},
				{"name": "date_from", "format": "YYYY-MM-DD"},
				{"name": "date_to", "format": "YYYY-MM-DD", "required": true},
				{"name": "time_from", "format": "HH:MM"},
				{"name": "time_to", "format": "HH:MM", "required": true},
				{"name": "skills", "repeated": true},
				{"name": "image", "type": "file", "required": true},
			},
		})
	}
}

// ---------------- LIST ----------------
func ListListings(svc ListingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		listings, err := svc.List(ctx)
		if err != nil {
			fail(c, err, "Could not fetch listings", "")
			return
		}
		if len(listings) == 0 {
			c.JSON(http.StatusOK, gin.H{"listings": []models.Listing{}})
			return
		}

		// --- ETag over the whole result, Last-Modified from the newest listing ---
		latest := listings[0]
		for _, l := range listings {
			if l.UpdatedAt.After(latest.UpdatedAt) {
				latest = l
			}
		}
		etag := utils.GenerateListETag(listings)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)
		c.Header("Last-Modified", latest.UpdatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, gin.H{"listings": listings})
	}
}

// ---------------- SEARCH ----------------
func SearchListings(svc ListingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		listings, err := svc.SearchText(ctx, c.Query("title"))
		if err != nil {
			fail(c, err, "Search failed", "/listings")
			return
		}
		if len(listings) == 0 {
			notice(c, http.StatusOK, "error", "No results for this search!", "", gin.H{"listings": listings})
			return
		}
		c.JSON(http.StatusOK, gin.H{"listings": listings})
	}
}

func SkillListings(svc ListingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		listings, err := svc.SearchSkill(ctx, c.Query("skill"))
		if err != nil {
			fail(c, err, "Search failed", "/listings")
			return
		}
		if len(listings) == 0 {
			notice(c, http.StatusOK, "error", "No results for this skills!", "", gin.H{"listings": listings})
			return
		}
		success(c, http.StatusOK, "Events found for this skill!", "", gin.H{"listings": listings})
	}
}

// ---------------- NEARBY ----------------

// FindListings answers with the JSON API shape: 400/500 bodies carry
// success=false and a message.
func FindListings(svc ListingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("longitude"), 64)
		dis, errDis := strconv.ParseFloat(c.Query("dis"), 64)
		if errLat != nil || errLng != nil || errDis != nil || !validOrigin(lat, lng, dis) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing parameters"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		res, err := svc.Nearby(ctx, models.NewGeoPoint(lat, lng), dis)
		if errors.Is(err, services.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing parameters"})
			return
		}
		if err != nil {
			log.Printf("controllers: nearby search: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Server error"})
			return
		}
		if res.Considered == 0 {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "No listings available", "listings": res.Listings})
			return
		}
		if len(res.Listings) == 0 {
			c.JSON(http.StatusOK, gin.H{"success": true, "error": "No Events Found", "listings": res.Listings})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Events Found!", "listings": res.Listings})
	}
}

// validOrigin rejects non-finite values and coordinates off the globe.
func validOrigin(lat, lng, dis float64) bool {
	for _, v := range []float64{lat, lng, dis} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 && dis >= 0
}

// FindListingsForm redirects a posted search form to the GET endpoint.
func FindListingsForm() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := url.Values{}
		q.Set("latitude", c.PostForm("latitude"))
		q.Set("longitude", c.PostForm("longitude"))
		q.Set("dis", c.PostForm("dis"))
		c.Redirect(http.StatusSeeOther, "/listings/find?"+q.Encode())
	}
}

// ---------------- GET ----------------
func GetListing(svc ListingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		listing, err := svc.Get(ctx, id)
		if errors.Is(err, services.ErrNotFound) {
			notice(c, http.StatusNotFound, "error", "No Events Found!", "/listings", nil)
			return
		}
		if err != nil {
			fail(c, err, "Could not fetch listing", "/listings")
			return
		}

		etag := utils.GenerateDetailETag(listing)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)
		c.Header("Last-Modified", listing.UpdatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, gin.H{"listing": listing})
	}
}

// GetVolunteer shows one user in the context of a listing.
func GetVolunteer(svc ListingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := currentUser(c); !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		vid, err := primitive.ObjectIDFromHex(c.Param("v_id"))
		if err != nil {
			notice(c, http.StatusNotFound, "error", "Volunteer not found!", "/listings/"+id.Hex(), nil)
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		listing, volunteer, err := svc.Volunteer(ctx, id, vid)
		if err != nil {
			fail(c, err, "Could not fetch volunteer", "/listings")
			return
		}
		c.JSON(http.StatusOK, gin.H{"listing": listing, "volunteer": volunteer})
	}
}

// ---------------- UPDATE ----------------
func UpdateListing(svc ListingService, images utils.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		var form listingForm
		if err := c.ShouldBind(&form); err != nil {
			notice(c, http.StatusBadRequest, "error", err.Error(), "/listings/"+id.Hex(), nil)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		// --- Optional replacement image ---
		var img *models.Image
		fh, err := c.FormFile("image")
		switch {
		case err == nil && images != nil:
			uploaded, err := images.Upload(ctx, fh)
			if err != nil {
				log.Printf("controllers: upload %s: %v", fh.Filename, err)
				notice(c, http.StatusBadGateway, "error", "Image upload failed", "/listings/"+id.Hex(), nil)
				return
			}
			img = &uploaded
		case err == nil:
			notice(c, http.StatusServiceUnavailable, "error", "Image uploads are not configured", "/listings/"+id.Hex(), nil)
			return
		case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
			notice(c, http.StatusBadRequest, "error", "invalid form data", "/listings/"+id.Hex(), nil)
			return
		}

		listing, err := svc.Update(ctx, userID, id, form.input(), img)
		if err != nil {
			if img != nil {
				discard(images, *img)
			}
			fail(c, err, "Failed to update listing. Please try again.", "/listings/"+id.Hex())
			return
		}
		success(c, http.StatusOK, "Listing updated successfully!", "/listings/"+id.Hex(), gin.H{"listing": listing})
	}
}

// ---------------- DELETE ----------------
func DeleteListing(svc ListingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		if err := svc.Delete(ctx, userID, id); err != nil {
			fail(c, err, "Could not delete listing", "/listings")
			return
		}
		success(c, http.StatusOK, "Listing Deleted!", "/listings", nil)
	}
}

// ---------------- PARTICIPATE ----------------
func Participate(svc ListingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		if err := svc.Participate(ctx, userID, id); err != nil {
			fail(c, err, "Could not join listing", "/listings")
			return
		}
		success(c, http.StatusOK, "Participated successfully!", "/listings/"+id.Hex(), nil)
	}
}

// ---------------- SHARE ----------------
func ShareForm(svc ListingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		listing, err := svc.ShareForm(ctx, userID, id)
		if err != nil {
			fail(c, err, "Could not load listing", "/listings")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"listing": listing,
			"action":  "/listings/" + id.Hex() + "/share",
			"fields":  []string{"subject", "content"},
		})
	}
}

func ShareListing(svc ListingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		var input struct {
			Subject string `form:"subject" json:"subject" binding:"required"`
			Content string `form:"content" json:"content" binding:"required"`
		}
		if err := c.ShouldBind(&input); err != nil {
			notice(c, http.StatusBadRequest, "error", "subject and content are required", "/listings/"+id.Hex()+"/share", nil)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		res, err := svc.Broadcast(ctx, userID, id, input.Subject, input.Content)
		if errors.Is(err, services.ErrNoRecipients) {
			fail(c, err, "", "/listings/"+id.Hex())
			return
		}
		if err != nil {
			fail(c, err, "Something went wrong!", "/listings")
			return
		}
		success(c, http.StatusOK, "Email sent to all volunteers!", "/listings/"+id.Hex(), gin.H{
			"attempted": res.Attempted,
			"failed":    res.Failed,
		})
	}
}

// discard removes an uploaded image whose listing write failed.
func discard(images utils.ImageStore, img models.Image) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := images.Destroy(ctx, img); err != nil {
		log.Printf("controllers: discard image %s: %v", img.Filename, err)
	}
}
