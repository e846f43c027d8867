package models

// QuotationTemplate is a reusable set of cost items for a kind of project.
type QuotationTemplate struct {
	Base        `bson:",inline"`
	Name        string     `bson:"name" json:"name" binding:"required"`
	ProjectType string     `bson:"project_type,omitempty" json:"projectType,omitempty"`
	Items       []CostItem `bson:"items" json:"items" binding:"required,min=1,dive"`
	GSTRate     *float64   `bson:"gst_rate,omitempty" json:"gstRate,omitempty" binding:"omitempty,gte=0,lte=100"`
	Timestamps  `bson:",inline"`
}
