// Package dynamo serves handle.Collection from a DynamoDB table whose
// partition key is the string attribute "_id".
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unkn0wn-root/docsource/handle"
	"github.com/unkn0wn-root/docsource/internal/keys"
)

// maxBatchGet is the DynamoDB limit on keys per BatchGetItem request.
const maxBatchGet = 100

var ErrUnsupportedFilter = errors.New("dynamo: unsupported filter")

// API is the subset of *dynamodb.Client used here.
type API interface {
	BatchGetItem(ctx context.Context, in *sdk.BatchGetItemInput, optFns ...func(*sdk.Options)) (*sdk.BatchGetItemOutput, error)
	Scan(ctx context.Context, in *sdk.ScanInput, optFns ...func(*sdk.Options)) (*sdk.ScanOutput, error)
}

type Collection struct {
	api   API
	table string
}

var _ handle.Collection = (*Collection)(nil)

func New(api API, table string) *Collection {
	return &Collection{api: api, table: table}
}

// NewClient loads the default AWS configuration for region. Static
// credentials are used when accessKey is set.
func NewClient(ctx context.Context, region, accessKey, secretKey string) (*sdk.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return sdk.NewFromConfig(cfg), nil
}

func (c *Collection) Name() string { return c.table }

// FindByIDs reads ids with BatchGetItem, chunked to the request limit and
// retrying unprocessed keys.
func (c *Collection) FindByIDs(ctx context.Context, ids []any) ([]bson.M, error) {
	var out []bson.M
	for start := 0; start < len(ids); start += maxBatchGet {
		end := min(start+maxBatchGet, len(ids))
		req := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			s, err := keys.IDString(id)
			if err != nil {
				return nil, err
			}
			req = append(req, map[string]types.AttributeValue{
				"_id": &types.AttributeValueMemberS{Value: s},
			})
		}
		pending := map[string]types.KeysAndAttributes{c.table: {Keys: req}}
		for len(pending) > 0 {
			res, err := c.api.BatchGetItem(ctx, &sdk.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return nil, fmt.Errorf("batch get %s: %w", c.table, err)
			}
			docs, err := decodeItems(res.Responses[c.table])
			if err != nil {
				return nil, err
			}
			out = append(out, docs...)
			pending = res.UnprocessedKeys
		}
	}
	return out, nil
}

// Find scans the table with a filter expression built from filter. Values
// may be literals or documents of comparison operators ($eq, $ne, $gt, $gte,
// $lt, $lte).
func (c *Collection) Find(ctx context.Context, filter bson.D) ([]bson.M, error) {
	expr, names, values, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}
	in := &sdk.ScanInput{
		TableName:                 aws.String(c.table),
		FilterExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
	var out []bson.M
	for {
		res, err := c.api.Scan(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.table, err)
		}
		docs, err := decodeItems(res.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
		if len(res.LastEvaluatedKey) == 0 {
			return out, nil
		}
		in.ExclusiveStartKey = res.LastEvaluatedKey
	}
}

var comparators = map[string]string{
	"$eq":  "=",
	"$ne":  "<>",
	"$gt":  ">",
	"$gte": ">=",
	"$lt":  "<",
	"$lte": "<=",
}

func buildFilter(filter bson.D) (string, map[string]string, map[string]types.AttributeValue, error) {
	if len(filter) == 0 {
		return "", nil, nil, fmt.Errorf("%w: empty filter", ErrUnsupportedFilter)
	}
	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)
	var clauses []string

	add := func(path, op string, v any) error {
		av, err := attributevalue.Marshal(plain(v))
		if err != nil {
			return fmt.Errorf("marshal %q: %w", path, err)
		}
		vn := ":v" + strconv.Itoa(len(values))
		values[vn] = av
		clauses = append(clauses, pathExpr(path, names)+" "+op+" "+vn)
		return nil
	}

	for _, e := range filter {
		ops, ok := e.Value.(bson.D)
		if !ok || len(ops) == 0 || !strings.HasPrefix(ops[0].Key, "$") {
			if err := add(e.Key, "=", e.Value); err != nil {
				return "", nil, nil, err
			}
			continue
		}
		for _, op := range ops {
			cmp, ok := comparators[op.Key]
			if !ok {
				return "", nil, nil, fmt.Errorf("%w: operator %s", ErrUnsupportedFilter, op.Key)
			}
			if err := add(e.Key, cmp, op.Value); err != nil {
				return "", nil, nil, err
			}
		}
	}
	return strings.Join(clauses, " AND "), names, values, nil
}

// pathExpr turns a dotted path into #n0.#n1, registering the names.
func pathExpr(path string, names map[string]string) string {
	parts := strings.Split(path, ".")
	for i, p := range parts {
		alias := ""
		for a, n := range names {
			if n == p {
				alias = a
				break
			}
		}
		if alias == "" {
			alias = "#n" + strconv.Itoa(len(names))
			names[alias] = p
		}
		parts[i] = alias
	}
	return strings.Join(parts, ".")
}

// plain converts driver-specific values to what attributevalue understands.
func plain(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = plain(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i := range t {
			out[i] = plain(t[i])
		}
		return out
	}
	return v
}

func decodeItems(items []map[string]types.AttributeValue) ([]bson.M, error) {
	if len(items) == 0 {
		return nil, nil
	}
	var raw []map[string]any
	if err := attributevalue.UnmarshalListOfMaps(items, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	out := make([]bson.M, len(raw))
	for i, m := range raw {
		out[i] = bson.M(m)
	}
	return out, nil
}
