package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/jobs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/utils"
)

const (
	emailTemplatesCollection = "email_templates"
	DefaultEmailLocale       = "en-IN"
)

// Default email templates used as fallback when not found in database
var defaultEmailTemplates = map[string]models.EmailTemplate{
	jobs.EmailQuotationShared: {
		TemplateID: jobs.EmailQuotationShared,
		Locale:     DefaultEmailLocale,
		Subject:    "Quotation {{.quotation_number}} from {{.company_name}}",
		Body: "Hello {{.client_name}},\n\n" +
			"Please review quotation {{.quotation_number}} for {{.grand_total}}.\n" +
			"Open it here: {{.link}}\n\n" +
			"The link is valid until {{.expires_at}}.\n\n{{.company_name}}",
	},
	jobs.EmailQuotationResponded: {
		TemplateID: jobs.EmailQuotationResponded,
		Locale:     DefaultEmailLocale,
		Subject:    "{{.client_name}} responded to {{.quotation_number}}: {{.action}}",
		Body: "{{.client_name}} chose to {{.action}} quotation {{.quotation_number}}.\n" +
			"{{if .comments}}Comments: {{.comments}}\n{{end}}" +
			"{{if .reasons}}Reason: {{.reasons}}\n{{end}}",
	},
	jobs.EmailInvoiceOverdue: {
		TemplateID: jobs.EmailInvoiceOverdue,
		Locale:     DefaultEmailLocale,
		Subject:    "Invoice {{.invoice_number}} is overdue",
		Body: "Hello {{.client_name}},\n\n" +
			"Invoice {{.invoice_number}} was due on {{.due_date}}. The outstanding balance is {{.balance}}.\n\n{{.company_name}}",
	},
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	Render(ctx context.Context, templateID, locale string, data map[string]interface{}) (subject, body string, err error)
	SaveTemplate(ctx context.Context, template *models.EmailTemplate) error
	DeleteTemplate(ctx context.Context, templateID, locale string) error
}

// EmailTemplateService handles operations related to email templates
type EmailTemplateService struct {
	db *mongo.Database
}

func NewEmailTemplateService(db *mongo.Database) *EmailTemplateService {
	return &EmailTemplateService{db: db}
}

// GetTemplate retrieves an email template by ID and locale, falling back to the built-in default.
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error) {
	if locale == "" {
		locale = DefaultEmailLocale
	}
	filter := bson.M{"template_id": templateID, "locale": locale}

	var tpl models.EmailTemplate
	err := s.db.Collection(emailTemplatesCollection).FindOne(ctx, filter).Decode(&tpl)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if def, ok := defaultEmailTemplates[templateID]; ok {
				return &def, nil
			}
			return nil, fmt.Errorf("%s (locale: %s): %w", templateID, locale, errs.NotFound("email template"))
		}
		return nil, fmt.Errorf("error retrieving template: %w", err)
	}
	return &tpl, nil
}

// Render fills subject and body of the template with data.
func (s *EmailTemplateService) Render(ctx context.Context, templateID, locale string, data map[string]interface{}) (string, string, error) {
	tpl, err := s.GetTemplate(ctx, templateID, locale)
	if err != nil {
		return "", "", err
	}
	return RenderEmailTemplate(tpl, data)
}

// RenderEmailTemplate executes subject and body as text/templates. Missing keys render empty.
func RenderEmailTemplate(tpl *models.EmailTemplate, data map[string]interface{}) (string, string, error) {
	subject, err := execText(tpl.TemplateID+".subject", tpl.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err := execText(tpl.TemplateID+".body", tpl.Body, data)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func execText(name, text string, data map[string]interface{}) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// SaveTemplate saves an email template to the database
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, tpl *models.EmailTemplate) error {
	if _, _, err := RenderEmailTemplate(tpl, nil); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	filter := bson.M{"template_id": tpl.TemplateID, "locale": tpl.Locale}
	update := bson.M{"$set": bson.M{
		"template_id": tpl.TemplateID,
		"locale":      tpl.Locale,
		"subject":     tpl.Subject,
		"body":        tpl.Body,
	}, "$setOnInsert": bson.M{"_id": utils.NewSixID()}}
	if _, err := s.db.Collection(emailTemplatesCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("error saving template: %w", err)
	}
	return nil
}

// DeleteTemplate deletes an email template from the database
func (s *EmailTemplateService) DeleteTemplate(ctx context.Context, templateID, locale string) error {
	filter := bson.M{"template_id": templateID, "locale": locale}
	if _, err := s.db.Collection(emailTemplatesCollection).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("error deleting template: %w", err)
	}
	return nil
}
