package vision

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/stevewoolley/IoT/internal/infrastructure/config"
)

// personLabels are the label names that count as a person sighting.
var personLabels = map[string]bool{
	"Person": true,
	"People": true,
}

// labelAPI is the subset of the image-analysis client used by the analyzer.
type labelAPI interface {
	DetectLabels(ctx context.Context, params *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
	SearchFacesByImage(ctx context.Context, params *rekognition.SearchFacesByImageInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesByImageOutput, error)
}

// queryAPI is the subset of the key-value client used for face lookups.
type queryAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Label is one detected object or scene element.
type Label struct {
	Name       string
	Confidence float32
}

// faceRecord maps an indexed face id to a person's name.
type faceRecord struct {
	ID   string `dynamodbav:"id"`
	Name string `dynamodbav:"name"`
}

// Analyzer runs cloud image analysis on stored captures.
type Analyzer struct {
	rek labelAPI
	db  queryAPI
	cfg config.VisionConfig
}

// New creates an Analyzer for the configured region using the ambient
// credential chain.
func New(ctx context.Context, region string, cfg config.VisionConfig) (*Analyzer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading image-analysis credentials: %w", err)
	}

	return &Analyzer{
		rek: rekognition.NewFromConfig(awsCfg),
		db:  dynamodb.NewFromConfig(awsCfg),
		cfg: cfg,
	}, nil
}

// DetectLabels analyzes a stored object and returns the labels detected at
// or above the configured confidence floor.
//
// Parameters:
//   - bucket: Bucket holding the object
//   - key: Object key
//
// Returns:
//   - []Label: Detected labels, as returned by the service
//   - error: If the analysis call fails
func (a *Analyzer) DetectLabels(ctx context.Context, bucket, key string) ([]Label, error) {
	out, err := a.rek.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image: &rektypes.Image{
			S3Object: &rektypes.S3Object{
				Bucket: aws.String(bucket),
				Name:   aws.String(key),
			},
		},
		MinConfidence: aws.Float32(a.cfg.MinConfidence),
	})
	if err != nil {
		return nil, fmt.Errorf("detecting labels for %s in %s: %w", key, bucket, err)
	}

	labels := make([]Label, 0, len(out.Labels))
	for _, l := range out.Labels {
		labels = append(labels, Label{
			Name:       aws.ToString(l.Name),
			Confidence: aws.ToFloat32(l.Confidence),
		})
	}
	return labels, nil
}

// Identify searches the configured face collection for faces in a stored
// object and resolves each match to a name through the faces table.
//
// The returned names are unique and sorted; a name seen in several face
// matches appears once. An image with no recognizable face returns an
// empty slice, not an error.
func (a *Analyzer) Identify(ctx context.Context, bucket, key string) ([]string, error) {
	out, err := a.rek.SearchFacesByImage(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId: aws.String(a.cfg.Collection),
		Image: &rektypes.Image{
			S3Object: &rektypes.S3Object{
				Bucket: aws.String(bucket),
				Name:   aws.String(key),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching faces for %s in %s: %w", key, bucket, err)
	}

	hits := make(map[string]bool)
	for _, match := range out.FaceMatches {
		if match.Face == nil || match.Face.FaceId == nil {
			continue
		}
		record, err := a.lookupFace(ctx, aws.ToString(match.Face.FaceId))
		if err != nil {
			return nil, err
		}
		if record != nil {
			hits[record.Name] = true
		}
	}

	names := make([]string, 0, len(hits))
	for name := range hits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// lookupFace resolves a face id to its record, or nil if unregistered.
func (a *Analyzer) lookupFace(ctx context.Context, faceID string) (*faceRecord, error) {
	out, err := a.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(a.cfg.FacesTable),
		KeyConditionExpression: aws.String("id = :id"),
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":id": &dbtypes.AttributeValueMemberS{Value: faceID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("looking up face %s: %w", faceID, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}

	var record faceRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &record); err != nil {
		return nil, fmt.Errorf("decoding face record %s: %w", faceID, err)
	}
	return &record, nil
}

// HasPerson reports whether any label names a person.
func HasPerson(labels []Label) bool {
	for _, l := range labels {
		if personLabels[l.Name] {
			return true
		}
	}
	return false
}

// TagValue flattens values into a single object-tag value, joined with "+".
// Object tags cannot hold lists, so "Person+Dog+Car" is the convention the
// web UI parses back.
func TagValue(values []string) string {
	return strings.Join(values, "+")
}

// LabelNames extracts the label names in service order.
func LabelNames(labels []Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
	}
	return names
}
