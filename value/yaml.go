package value

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FromYAML parses a YAML document into a Value. Mapping keys keep their
// document order, matching how object values iterate elsewhere.
func FromYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Undefined(), err
	}
	if doc.Kind == 0 {
		return Null(), nil
	}
	return fromYAMLNode(&doc)
}

func fromYAMLNode(node *yaml.Node) (Value, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Null(), nil
		}
		return fromYAMLNode(node.Content[0])
	case yaml.AliasNode:
		return fromYAMLNode(node.Alias)
	case yaml.ScalarNode:
		return fromYAMLScalar(node)
	case yaml.SequenceNode:
		items := make([]Value, 0, len(node.Content))
		for _, child := range node.Content {
			item, err := fromYAMLNode(child)
			if err != nil {
				return Undefined(), err
			}
			items = append(items, item)
		}
		return FromSlice(items), nil
	case yaml.MappingNode:
		obj := NewObject()
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			var key string
			if err := keyNode.Decode(&key); err != nil {
				return Undefined(), fmt.Errorf("yaml: unsupported mapping key at line %d", keyNode.Line)
			}
			item, err := fromYAMLNode(node.Content[i+1])
			if err != nil {
				return Undefined(), err
			}
			obj.Set(key, item)
		}
		return FromObject(obj), nil
	}
	return Undefined(), fmt.Errorf("yaml: unsupported node kind %d", node.Kind)
}

func fromYAMLScalar(node *yaml.Node) (Value, error) {
	switch node.Tag {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return Undefined(), err
		}
		return FromBool(b), nil
	case "!!int":
		if i, err := strconv.ParseInt(node.Value, 0, 64); err == nil {
			return FromInt(i), nil
		}
		var f float64
		if err := node.Decode(&f); err != nil {
			return Undefined(), err
		}
		return FromFloat(f), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return Undefined(), err
		}
		return FromFloat(f), nil
	default:
		return FromString(node.Value), nil
	}
}

// ToYAML renders the value as a YAML document. Object keys keep their
// insertion order.
func (v Value) ToYAML() (string, error) {
	node, err := v.toYAMLNode()
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (v Value) toYAMLNode() (*yaml.Node, error) {
	switch t := v.data.(type) {
	case nil, nullType:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(t)}, nil
	case int64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(t, 10)}, nil
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(t)}, nil
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t}, nil
	case safeString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(t)}, nil
	case []Value:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			child, err := item.toYAMLNode()
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case *Object:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		var nodeErr error
		t.Range(func(k string, item Value) bool {
			child, err := item.toYAMLNode()
			if err != nil {
				nodeErr = err
				return false
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				child)
			return true
		})
		if nodeErr != nil {
			return nil, nodeErr
		}
		return node, nil
	}
	return nil, fmt.Errorf("yaml: cannot encode %s value", v.Kind())
}
