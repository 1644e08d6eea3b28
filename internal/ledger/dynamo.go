package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/clinic-intake/internal/booking"
)

// ErrDuplicateAppointment is returned when an appointment id is already
// present in the table.
var ErrDuplicateAppointment = errors.New("ledger: appointment already recorded")

// DynamoAPI is the subset of the DynamoDB client the ledger uses.
type DynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoItem is the table layout; appointment_id is the partition key.
type dynamoItem struct {
	AppointmentID  string `dynamodbav:"appointment_id"`
	ConversationID string `dynamodbav:"conversation_id,omitempty"`
	PatientName    string `dynamodbav:"patient_name"`
	Age            int    `dynamodbav:"age"`
	Gender         string `dynamodbav:"gender"`
	PinCode        string `dynamodbav:"pincode"`
	SymptomSummary string `dynamodbav:"symptom_summary"`
	Department     string `dynamodbav:"department"`
	DoctorID       string `dynamodbav:"doctor_id"`
	DoctorName     string `dynamodbav:"doctor_name"`
	Branch         string `dynamodbav:"branch"`
	SelectedDate   string `dynamodbav:"selected_date"`
	TimeSlot       string `dynamodbav:"time_slot"`
	Email          string `dynamodbav:"email"`
	BookedAt       string `dynamodbav:"booking_timestamp"`
}

// Dynamo writes one item per appointment.
type Dynamo struct {
	client    DynamoAPI
	tableName string
}

func NewDynamo(client DynamoAPI, tableName string) *Dynamo {
	if client == nil {
		panic("ledger: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("ledger: table name cannot be empty")
	}
	return &Dynamo{client: client, tableName: tableName}
}

func (d *Dynamo) Append(ctx context.Context, r booking.AppointmentRecord) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		AppointmentID:  r.ID,
		ConversationID: r.ConversationID,
		PatientName:    r.PatientName,
		Age:            r.Age,
		Gender:         r.Gender,
		PinCode:        r.PinCode,
		SymptomSummary: r.SymptomSummary,
		Department:     r.Department,
		DoctorID:       r.DoctorID,
		DoctorName:     r.DoctorName,
		Branch:         r.Branch,
		SelectedDate:   r.Date,
		TimeSlot:       r.TimeSlot,
		Email:          r.Email,
		BookedAt:       r.Timestamp(),
	})
	if err != nil {
		return fmt.Errorf("ledger: failed to marshal appointment: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(appointment_id)"),
	})
	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return fmt.Errorf("%w: %s", ErrDuplicateAppointment, r.ID)
		}
		return fmt.Errorf("ledger: failed to persist appointment: %w", err)
	}
	return nil
}

var _ booking.Ledger = (*Dynamo)(nil)
